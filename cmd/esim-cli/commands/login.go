package commands

import (
	"esimassist-backend/internal/target"
	"esimassist-backend/pkg/serviceutil"
	"log/slog"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <target>",
	Short: "Logs into a game server with the configured credentials.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := loadApp()
		defer a.Close()

		id := target.ID(args[0])
		err := a.Manager.Login(cmd.Context(), id)
		if err != nil {
			serviceutil.Fatal("login failed", err)
		}
		slog.Info("logged in", "target", id, "root", id.Root(a.Config.Domain))
	},
}
