package main

import (
	"context"
	"esimassist-backend/internal/app"
	"esimassist-backend/internal/components/chrono"
	"esimassist-backend/internal/components/telemetry"
	"esimassist-backend/internal/config"
	"esimassist-backend/internal/service"
	"esimassist-backend/pkg/serviceutil"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/mazen160/go-random"
	"golang.org/x/sync/errgroup"
)

const report_session_pool_live = "session_pool.live"

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	configPath := flag.String("config", "config.json5", "Path to the configuration file.")
	flag.Parse()

	telemetry.InitSlog(*verbose)

	err := run(serviceutil.SignalContext(), *configPath)
	if err != nil {
		serviceutil.Fatal("run server", err)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	otel, err := telemetry.Setup(ctx, "esim-server", cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := otel.Shutdown(shutdownCtx)
		if err != nil {
			slog.Warn("shutdown telemetry", "err", err)
		}
	}()

	tel := telemetry.SlogAPI{}

	a, err := app.New(cfg, tel)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	accessToken := cfg.Server.AccessToken
	if accessToken == "" {
		accessToken, err = random.String(32)
		if err != nil {
			return fmt.Errorf("generate access token: %w", err)
		}
		slog.Warn("no access token configured, generated one for this run", "access_token", accessToken)
	}

	perfStats, err := telemetry.NewPerfStats(tel)
	if err != nil {
		return fmt.Errorf("init perf stats: %w", err)
	}
	cron := chrono.NewStandardCron(tel)
	err = cron.Cron("@every 1m", func() {
		tel.ReportCount(report_session_pool_live, int64(a.Pool.Len()))
		perfStats.Record(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule perf stats: %w", err)
	}

	mux := http.NewServeMux()
	service.Register(
		mux,
		service.NewService(a.Manager, a.Stops, tel),
		connect.WithInterceptors(
			serviceutil.NewConnectOtelInterceptor(),
			service.NewAccessTokenInterceptor(accessToken),
		),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return serviceutil.StartHttpServer(groupCtx, cfg.Server.Port, mux)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		cron.Stop(stopCtx)
		return nil
	})

	err = group.Wait()
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
