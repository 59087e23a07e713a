package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	stopCmd.AddCommand(stopCheckCmd)
	rootCmd.AddCommand(stopCmd)
}

var stopCmd = &cobra.Command{
	Use:   "stop <channel> <command>",
	Short: "Asks a long-running command on the esim-server to stop at its next check.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		running, err := newClient().RequestStop(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if !running {
			return fmt.Errorf("%s is not running in %s", args[1], args[0])
		}

		t := newTable()
		t.AppendHeader(table.Row{"channel", "command", "status"})
		t.AppendRow(table.Row{args[0], args[1], "stopping"})
		t.Render()
		return nil
	},
}

var stopCheckCmd = &cobra.Command{
	Use:   "check <channel> <command>",
	Short: "Reports whether a command was asked to stop, registering it as running.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		stop, err := newClient().ShouldStop(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(stop)
		return nil
	},
}
