package commands

import (
	"errors"
	"esimassist-backend/internal/credentials"
	"esimassist-backend/internal/target"
	"log/slog"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsDeleteCmd)
	credentialsCmd.AddCommand(credentialsListCmd)
	rootCmd.AddCommand(credentialsCmd)
}

var errNoKeychain = errors.New("no keychain is configured")

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manages the credentials stored in the keychain.",
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set <target> <nick> <password>",
	Short: "Stores the credentials used to log into a target.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := loadApp()
		defer a.Close()
		if a.Keychain == nil {
			return errNoKeychain
		}

		err := a.Keychain.Set(cmd.Context(), target.ID(args[0]), credentials.Credentials{
			Nick:     args[1],
			Password: args[2],
		})
		if err != nil {
			return err
		}
		slog.Info("stored credentials", "target", args[0], "nick", args[1])
		return nil
	},
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete <target>",
	Short: "Removes the stored credentials of a target, configured ones apply again.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := loadApp()
		defer a.Close()
		if a.Keychain == nil {
			return errNoKeychain
		}
		return a.Keychain.Delete(cmd.Context(), target.ID(args[0]))
	},
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the targets with stored credentials.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := loadApp()
		defer a.Close()
		if a.Keychain == nil {
			return errNoKeychain
		}

		entries, err := a.Keychain.List(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"target", "nick", "updated"})
		for _, entry := range entries {
			t.AppendRow(table.Row{entry.Target, entry.Nick, entry.UpdatedAt.Format(time.DateTime)})
		}
		t.Render()
		return nil
	},
}
