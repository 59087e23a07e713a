package commands

import (
	"context"
	"esimassist-backend/internal/app"
	"esimassist-backend/internal/components/telemetry"
	"esimassist-backend/internal/config"
	"esimassist-backend/internal/service"
	"esimassist-backend/pkg/serviceutil"
	"fmt"
	"net/http"
	"os"

	"connectrpc.com/connect"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	verbose     bool
	serverUrl   string
	accessToken string
	dumpDir     string
)

var rootCmd = &cobra.Command{
	Use:   "esim-cli",
	Short: "esim-cli fetches from game servers and controls a running esim-server.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json5", "Path to the configuration file.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging.")
	rootCmd.PersistentFlags().StringVar(&serverUrl, "server", envOr("ESIM_SERVER_URL", "http://localhost:8000"), "Base url of a running esim-server.")
	rootCmd.PersistentFlags().StringVar(&dumpDir, "dump", "", "Directory to write a transcript of every request to.")
	rootCmd.PersistentFlags().StringVar(&accessToken, "token", os.Getenv("ESIM_ACCESS_TOKEN"), "Access token of the esim-server.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return value
}

// loadApp builds the fetch stack in this process.
func loadApp() *app.App {
	cfg, err := config.Load(configPath, nil)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	tel := telemetry.SlogAPI{}

	var opts []app.Option
	if dumpDir != "" {
		output, err := telemetry.NewFilesystemOutput(dumpDir, tel)
		if err != nil {
			serviceutil.Fatal("failed to create dump directory", err)
		}
		opts = append(opts, app.WithDump(output))
	}

	a, err := app.New(cfg, tel, opts...)
	if err != nil {
		serviceutil.Fatal("failed to initialize", err)
	}
	return a
}

func newClient() service.Client {
	var opts []connect.ClientOption
	if accessToken != "" {
		opts = append(opts, connect.WithInterceptors(serviceutil.ProvideAccessTokenInterceptor(accessToken)))
	}
	return service.NewClient(http.DefaultClient, serverUrl, opts...)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
