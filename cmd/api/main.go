package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/cmlabs-hris/hris-live-attendance/internal/config"
	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
	appHTTP "github.com/cmlabs-hris/hris-live-attendance/internal/handler/http"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/cron"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/database"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/jwt"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/sse"
	"github.com/cmlabs-hris/hris-live-attendance/internal/repository/postgresql"
	"github.com/cmlabs-hris/hris-live-attendance/internal/repository/sqlite"
	attendanceService "github.com/cmlabs-hris/hris-live-attendance/internal/service/attendance"
	liveService "github.com/cmlabs-hris/hris-live-attendance/internal/service/live"
)

type stores struct {
	sessions  attendance.SessionRepository
	shifts    attendance.ShiftRepository
	employees attendance.EmployeeRepository
	close     func()
}

func main() {
	if err := run(); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel()})))

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, loc)
	if err != nil {
		return err
	}
	defer st.close()

	if cfg.App.ShiftCatalogFile != "" {
		catalog, err := config.LoadCatalog(cfg.App.ShiftCatalogFile)
		if err != nil {
			return err
		}
		if err := catalog.Seed(ctx, st.shifts, st.employees); err != nil {
			return fmt.Errorf("seed shift catalog: %w", err)
		}
		slog.Info("Shift catalog loaded", "file", cfg.App.ShiftCatalogFile, "companies", len(catalog.Companies))
	}

	JWTService, err := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	if err != nil {
		return err
	}

	calculator := attendanceService.NewCalculator(loc)
	sessionService := attendanceService.NewSessionService(st.sessions, calculator)
	hub := sse.NewHub()
	liveSvc := liveService.NewLiveService(st.sessions, calculator, loc, liveService.ControllerConfig{
		Interval:        cfg.Live.RefreshInterval,
		VisibleDebounce: cfg.Live.VisibleDebounce,
		OnlineDebounce:  cfg.Live.OnlineDebounce,
		StaleAfter:      cfg.Live.StaleAfter,
	}, hub, nil)
	defer liveSvc.Shutdown()

	scheduler := cron.NewScheduler(nil)
	cron.NewAttendanceJobs(st.sessions, loc).RegisterJobs(scheduler, cfg.Cron.ReconcileInterval)
	cron.NewConnectivityJobs(st.sessions, liveSvc).RegisterJobs(scheduler, cfg.Cron.StoreProbeInterval)
	scheduler.RunOnce(ctx)
	scheduler.Start()
	defer scheduler.Stop()

	router := appHTTP.NewRouter(
		cfg,
		JWTService,
		appHTTP.NewAttendanceHandler(sessionService),
		appHTTP.NewLiveHandler(liveSvc, JWTService),
	)

	// Request contexts derive from baseCtx so open streams end on shutdown.
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server running", "addr", server.Addr, "store", cfg.Store.Driver, "timezone", loc.String())
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	liveSvc.Shutdown()
	cancelRequests()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, loc *time.Location) (stores, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		store, err := sqlite.New(cfg.Store.SQLitePath,
			sqlite.WithLocation(loc),
			sqlite.WithQueryTimeout(cfg.Store.QueryTimeout),
		)
		if err != nil {
			return stores{}, fmt.Errorf("open sqlite store: %w", err)
		}
		return stores{
			sessions:  sqlite.NewSessionRepository(store),
			shifts:    sqlite.NewShiftRepository(store),
			employees: sqlite.NewEmployeeRepository(store),
			close:     func() { store.Close() },
		}, nil

	default:
		db, err := database.NewPostgreSQLDB(ctx, cfg.DatabaseURL(), cfg.Store.QueryTimeout)
		if err != nil {
			return stores{}, fmt.Errorf("connect to database: %w", err)
		}
		if err := postgresql.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return stores{}, err
		}
		return stores{
			sessions:  postgresql.NewSessionRepository(db, loc),
			shifts:    postgresql.NewShiftRepository(db),
			employees: postgresql.NewEmployeeRepository(db),
			close:     db.Close,
		}, nil
	}
}
