package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"time"

	"promptshelf/internal/components/chrono"
	"promptshelf/internal/components/telemetry"
	"promptshelf/internal/config"
	"promptshelf/internal/service"
	"promptshelf/internal/store"
	"promptshelf/lib/serviceutil"
	libtelemetry "promptshelf/lib/telemetry"

	"connectrpc.com/connect"
)

func main() {
	configPath := flag.String("config", "", "Path to the config file, defaults to the nearest "+config.DefaultName+".")
	verbose := flag.Bool("v", false, "Enable debug logging.")
	flag.Parse()

	ctx := serviceutil.SignalContext()
	libtelemetry.InitSlog(*verbose)

	cfg, err := config.Load(*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}

	otel, err := libtelemetry.SetupFromEnv(ctx, "promptshelf-server")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	defer otel.Shutdown(context.Background())
	libtelemetry.InstrumentPerfStats(ctx, 30*time.Second)

	tel := telemetry.SlogAPI{}

	var saver service.Saver
	if !cfg.Database.IsZero() {
		db, err := cfg.Database.OpenDB()
		if err != nil {
			serviceutil.Fatal("failed to open database", err)
		}
		s, err := store.NewStore(ctx, db, chrono.StandardImpl{})
		if err != nil {
			serviceutil.Fatal("failed to initialize store", err)
		}
		defer s.Close()
		saver = s
	} else {
		slog.Warn("no database configured, saving is disabled")
	}

	svc := service.NewService(cfg.NewOrchestrator(tel, nil), saver, tel)
	if cfg.Server.AccessToken == "" {
		slog.Warn("no access token configured, the service is open to anyone")
	}

	mux := http.NewServeMux()
	mux.Handle(service.NewHandler(
		svc,
		connect.WithInterceptors(
			serviceutil.NewConnectOtelInterceptor(),
			serviceutil.VerifyAccessTokenInterceptor(cfg.Server.AccessToken),
		),
	))

	err = serviceutil.StartHttpServer(ctx, cfg.Server.Port, mux)
	if err != nil {
		serviceutil.Fatal("server stopped", err)
	}
}
