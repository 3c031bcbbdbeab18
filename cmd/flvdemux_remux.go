package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/streamworks/flvdemux/config"
	"github.com/streamworks/flvdemux/internal/flvdemux"
	"github.com/streamworks/flvdemux/internal/remux/fmp4sink"
	"github.com/streamworks/flvdemux/internal/remux/tssink"
	"github.com/streamworks/flvdemux/internal/remux/webmsink"
	"github.com/streamworks/flvdemux/internal/util"
)

// sink is the common shape every remux package in internal/remux exposes:
// feed it flvdemux events, it writes a playable container to the writer it
// was constructed with.
type sink interface {
	HandleEvent(ev flvdemux.Event) error
}

// NewRemuxCommand drives a remux sink from a file, writing the result to
// stdout or --output.
func NewRemuxCommand() *cobra.Command {
	var to, output string

	cmd := &cobra.Command{
		Use:   "remux <file>",
		Short: "Remux an FLV file to fMP4, MPEG-TS, or WebM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemux(args[0], to, output)
		},
	}

	cmd.Flags().StringVar(&to, "to", config.GetRemuxSink(), "Target container: fmp4, ts, or webm")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (default: stdout)")

	return cmd
}

func runRemux(path, to, output string) error {
	in, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "remux: open %s", path)
	}
	defer in.Close()

	out := os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return errors.Wrapf(err, "remux: create %s", output)
		}
		defer f.Close()
		out = f
	}

	log := util.GetLogger()
	var s sink
	switch to {
	case "fmp4":
		s = fmp4sink.New(out, log)
	case "ts":
		s = tssink.New(out, log)
	case "webm":
		s = webmsink.New(out, log)
	default:
		return fmt.Errorf("remux: unknown sink %q (want fmp4, ts, or webm)", to)
	}

	d := flvdemux.New(log)
	if err := d.Start(nil, false); err != nil {
		return errors.Wrap(err, "remux: start demuxer")
	}
	defer d.Stop()

	chunk := make([]byte, 4096)
	for {
		n, readErr := in.Read(chunk)
		var push []byte
		if n > 0 {
			push = append([]byte{}, chunk[:n]...)
		}

		for {
			ev, demuxErr := d.HandleBuffer(push)
			push = nil
			if demuxErr != nil {
				return errors.Wrap(demuxErr, "remux: fatal parse error")
			}
			if ev.Kind == flvdemux.EventNeedMoreData {
				break
			}
			if err := s.HandleEvent(ev); err != nil {
				return errors.Wrap(err, "remux: sink")
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				if closer, ok := s.(io.Closer); ok {
					return closer.Close()
				}
				return nil
			}
			return errors.Wrap(readErr, "remux: read")
		}
	}
}
