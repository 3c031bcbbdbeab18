package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

// setupHelpCommand installs a custom help renderer that orders top-level
// commands by a fixed priority list instead of cobra's alphabetical default.
func setupHelpCommand(rootCmd *cobra.Command) {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		printRootHelpOrdered(cmd)
	})
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "help",
		Short:  "Show help information",
		Hidden: false,
		Run: func(cmd *cobra.Command, args []string) {
			printRootHelpOrdered(cmd.Root())
		},
	})
	rootCmd.PersistentFlags().BoolP("help", "", false, "")
	rootCmd.PersistentFlags().MarkHidden("help")
}

func printRootHelpOrdered(cmd *cobra.Command) {
	priority := []string{"probe", "serve", "remux", "version", "help"}
	priorityIndex := map[string]int{}
	for i, name := range priority {
		priorityIndex[name] = i
	}

	if cmd.Long != "" {
		fmt.Fprintln(os.Stdout, cmd.Long)
	} else if cmd.Short != "" {
		fmt.Fprintln(os.Stdout, cmd.Short)
	}

	fmt.Fprintln(os.Stdout, "\nUsage:")
	fmt.Fprintf(os.Stdout, "  %s [flags]\n", cmd.Name())
	fmt.Fprintf(os.Stdout, "  %s [command]\n", cmd.Name())

	commands := []*cobra.Command{}
	for _, c := range cmd.Commands() {
		if !c.IsAvailableCommand() || c.Hidden {
			continue
		}
		commands = append(commands, c)
	}

	sort.SliceStable(commands, func(i, j int) bool {
		ci, cj := commands[i], commands[j]
		pi, okI := priorityIndex[ci.Name()]
		pj, okJ := priorityIndex[cj.Name()]
		if okI && okJ {
			if pi == pj {
				return ci.Name() < cj.Name()
			}
			return pi < pj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return ci.Name() < cj.Name()
	})

	fmt.Fprintln(os.Stdout, "\nAvailable Commands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stdout, "  %-14s %s\n", c.Name(), c.Short)
	}

	fmt.Fprintln(os.Stdout, "\nFlags:")
	fmt.Fprint(os.Stdout, cmd.Flags().FlagUsages())

	fmt.Fprintf(os.Stdout, "\nUse \"%s [command] --help\" for more information about a command.\n", cmd.Name())
}
