package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/rollcall/internal/auth"
	"github.com/mmynk/rollcall/internal/checkin"
	"github.com/mmynk/rollcall/internal/clock"
	"github.com/mmynk/rollcall/internal/config"
	"github.com/mmynk/rollcall/internal/middleware"
	"github.com/mmynk/rollcall/internal/report"
	"github.com/mmynk/rollcall/internal/roster"
	"github.com/mmynk/rollcall/internal/service"
	"github.com/mmynk/rollcall/internal/session"
	"github.com/mmynk/rollcall/internal/storage"
	"github.com/mmynk/rollcall/internal/storage/firebase"
	"github.com/mmynk/rollcall/internal/storage/memory"
	"github.com/mmynk/rollcall/internal/storage/postgres"
	"github.com/mmynk/rollcall/internal/storage/sqlite"
	"github.com/mmynk/rollcall/pkg/logging"
	"github.com/mmynk/rollcall/pkg/obs"
)

const (
	sweepInterval   = time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup()
		return fmt.Errorf("load config: %w", err)
	}
	logging.SetupWith(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slog.Warn("Tracer shutdown failed", "error", err)
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	gw := storage.NewGateway(backend, storage.WithPollInterval(cfg.StorePollInterval))
	defer gw.Close()
	slog.Info("Storage initialized", "backend", cfg.StoreBackend, "poll_interval", cfg.StorePollInterval)

	seed, err := roster.LoadSeed(cfg.RosterSeedFile)
	if err != nil {
		return err
	}
	staff := roster.NewManager(gw, seed)
	if err := staff.Start(ctx); err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	defer staff.Close()
	if cfg.SeedOnStart {
		if _, err := staff.SeedIfEmpty(ctx); err != nil {
			slog.Error("Roster seeding failed", "error", err)
		}
	}

	engine := report.NewEngine(gw, staff)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("load attendance: %w", err)
	}
	defer engine.Close()

	authenticator := auth.NewPasswordAuthenticator(auth.NewAdminStore(gw))
	if _, err := auth.EnsureAdmin(ctx, authenticator, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	guard := session.NewGuard(cfg.SessionWarnAfter, cfg.SessionTimeout,
		session.OnWarn(func(st session.Status) {
			slog.Info("Session about to expire", "admin_id", st.AdminID, "remaining_s", st.RemainingSeconds)
		}),
		session.OnExpire(func(st session.Status) {
			slog.Info("Session expired due to inactivity", "admin_id", st.AdminID)
		}),
	)
	go guard.Run(ctx, sweepInterval)

	desk := checkin.NewDesk(staff, gw, clock.System{Location: loc}, cfg.CheckInResetAfter)
	go desk.Run(ctx)

	mux := service.NewMux(service.Deps{
		Roster:        staff,
		Engine:        engine,
		Desk:          desk,
		Authenticator: authenticator,
		JWT:           auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL),
		Guard:         guard,
		Logger:        slog.Default(),
	})

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	handler := h2c.NewHandler(middleware.Logging(middleware.CORS(mux)), &http2.Server{})

	servers := []*http.Server{{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.MetricsAddr != "" {
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           service.NewMetricsMux(),
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		srv := srv
		go func() {
			slog.Info("Server starting", "address", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
		}()
	}

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Server shutdown failed", "address", srv.Addr, "error", err)
		}
	}
	return serveErr
}

func openBackend(ctx context.Context, cfg config.App) (storage.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		return sqlite.New(cfg.DBPath)
	case config.BackendPostgres:
		return postgres.New(ctx, cfg.PostgresDSN)
	case config.BackendFirebase:
		return firebase.New(ctx, cfg.FirebaseDatabaseURL, cfg.FirebaseCredentialsFile)
	case config.BackendMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
