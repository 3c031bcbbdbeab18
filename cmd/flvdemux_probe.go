package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/streamworks/flvdemux/internal/flvdemux"
	"github.com/streamworks/flvdemux/internal/util"
)

// NewProbeCommand drains a file through the demuxer core and prints the
// event trace, the way a developer would watch the Rust original's
// trace!/debug! log lines scroll by.
func NewProbeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Drain an FLV file through the demuxer and print its event trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(args[0])
		},
	}
	return cmd
}

func runProbe(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "probe: open %s", path)
	}
	defer f.Close()

	d := flvdemux.New(util.GetLogger())
	if err := d.Start(nil, false); err != nil {
		return errors.Wrap(err, "probe: start")
	}
	defer d.Stop()

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	chunk := make([]byte, 4096)
	var buffers, streams int
	for {
		n, readErr := f.Read(chunk)
		var push []byte
		if n > 0 {
			push = append([]byte{}, chunk[:n]...)
		}

		for {
			ev, demuxErr := d.HandleBuffer(push)
			push = nil
			if demuxErr != nil {
				return errors.Wrap(demuxErr, "probe: fatal parse error")
			}
			switch ev.Kind {
			case flvdemux.EventNeedMoreData:
				goto next
			case flvdemux.EventAgain:
				continue
			case flvdemux.EventStreamAdded:
				streams++
				fmt.Printf("%s stream %s added: %s\n", green("+"), ev.Stream.Kind, ev.Stream.Caps.String())
			case flvdemux.EventStreamChanged:
				fmt.Printf("%s stream %s changed: %s\n", yellow("~"), ev.Stream.Kind, ev.Stream.Caps.String())
			case flvdemux.EventStreamsChanged:
				for _, st := range ev.Streams {
					fmt.Printf("%s stream %s changed (metadata): %s\n", yellow("~"), st.Kind, st.Caps.String())
				}
			case flvdemux.EventHaveAllStreams:
				fmt.Printf("%s all streams discovered\n", cyan("="))
			case flvdemux.EventBufferForStream:
				buffers++
			}
		}
	next:
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return errors.Wrap(readErr, "probe: read")
		}
	}

	fmt.Printf("\n%d streams discovered, %d sample buffers emitted\n", streams, buffers)
	return nil
}
