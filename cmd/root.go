package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/streamworks/flvdemux/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "flvdemux",
	Short: "flvdemux CLI",
	Long:  `flvdemux is a command-line tool for driving the FLV demultiplexer core: probing files, running the ingest/liveview servers, and remuxing to fMP4, MPEG-TS, or WebM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flag("version").Changed {
			info := version.ClientInfo()
			fmt.Printf("flvdemux version %s, build %s\n", info["Version"], info["GitCommit"])
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewProbeCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewRemuxCommand())

	setupHelpCommand(rootCmd)
}
