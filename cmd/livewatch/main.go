// livewatch follows the live attendance view of one company from a terminal.
// It reads the session store directly and logs the summary after every
// refresh.
//
// Signals: SIGUSR1 toggles visibility (a hidden view stops polling) and
// SIGUSR2 forces an interactive refresh.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/pflag"

	"github.com/cmlabs-hris/hris-live-attendance/internal/config"
	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/live"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/cron"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/database"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/validator"
	"github.com/cmlabs-hris/hris-live-attendance/internal/repository/postgresql"
	"github.com/cmlabs-hris/hris-live-attendance/internal/repository/sqlite"
	attendanceService "github.com/cmlabs-hris/hris-live-attendance/internal/service/attendance"
	liveService "github.com/cmlabs-hris/hris-live-attendance/internal/service/live"
)

type options struct {
	store      string
	sqlitePath string
	dsn        string
	company    string
	department string
	location   string
	timezone   string
	interval   time.Duration
	probe      time.Duration
	staleAfter time.Duration
	verbose    bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options

	flagSet := pflag.NewFlagSet("livewatch", pflag.ContinueOnError)
	flagSet.StringVar(&opts.store, "store", config.StoreDriverSQLite, "session store driver (sqlite or postgres)")
	flagSet.StringVar(&opts.sqlitePath, "sqlite-path", "data/attendance.db", "path to the sqlite store")
	flagSet.StringVar(&opts.dsn, "dsn", os.Getenv("DATABASE_URL"), "postgres connection string")
	flagSet.StringVarP(&opts.company, "company", "c", "", "company id to watch (required)")
	flagSet.StringVarP(&opts.department, "department", "d", "", "only show this department")
	flagSet.StringVarP(&opts.location, "location", "l", "", "only show this location")
	flagSet.StringVar(&opts.timezone, "timezone", "UTC", "IANA zone used for the attendance day")
	flagSet.DurationVar(&opts.interval, "interval", liveService.DefaultInterval, "refresh interval while visible")
	flagSet.DurationVar(&opts.probe, "probe-interval", 15*time.Second, "store connectivity probe interval")
	flagSet.DurationVar(&opts.staleAfter, "stale-after", liveService.DefaultStaleAfter, "age after which the view counts as stale")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log every session on refresh")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if err := opts.validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	loc, err := time.LoadLocation(opts.timezone)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions, closeStore, err := openSessions(ctx, opts, loc)
	if err != nil {
		return err
	}
	defer closeStore()

	filter := attendance.LiveFilter{CompanyID: opts.company, Department: opts.department, Location: opts.location}
	printer := &summaryPrinter{logger: logger, verbose: opts.verbose, loc: loc}

	controller := liveService.NewController(sessions, attendanceService.NewCalculator(loc), filter,
		liveService.ControllerConfig{Interval: opts.interval, StaleAfter: opts.staleAfter},
		liveService.WithNotifier(liveService.LogNotifier{Logger: logger}),
		liveService.WithOnChange(printer.print),
	)

	scheduler := cron.NewScheduler(nil)
	cron.NewConnectivityJobs(sessions, controller).RegisterJobs(scheduler, opts.probe)
	scheduler.Start()
	defer scheduler.Stop()

	controller.Start()
	defer controller.Stop()
	if err := controller.Refresh(ctx, false); err != nil {
		logger.Warn("Initial load failed", "error", err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(signals)

	visible := true
	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping live watch")
			return nil
		case sig := <-signals:
			switch sig {
			case syscall.SIGUSR1:
				visible = !visible
				controller.SetVisible(visible)
				logger.Info("Visibility changed", "visible", visible)
			case syscall.SIGUSR2:
				if err := controller.Refresh(ctx, false); err != nil && !errors.Is(err, live.ErrRefreshInProgress) {
					logger.Warn("Refresh failed", "error", err)
				}
			}
		}
	}
}

func (o options) validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(o.company) {
		errs = append(errs, validator.ValidationError{Field: "company", Message: "--company is required"})
	}
	if !validator.IsInSlice(o.store, []string{config.StoreDriverSQLite, config.StoreDriverPostgres}) {
		errs = append(errs, validator.ValidationError{Field: "store", Message: "--store must be sqlite or postgres"})
	}
	if o.store == config.StoreDriverPostgres && validator.IsEmpty(o.dsn) {
		errs = append(errs, validator.ValidationError{Field: "dsn", Message: "--dsn is required for postgres"})
	}
	if !validator.IsValidTimeZone(o.timezone) {
		errs = append(errs, validator.ValidationError{Field: "timezone", Message: "--timezone must be an IANA zone"})
	}
	if o.interval <= 0 || o.probe <= 0 || o.staleAfter <= 0 {
		errs = append(errs, validator.ValidationError{Field: "interval", Message: "intervals must be positive"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func openSessions(ctx context.Context, opts options, loc *time.Location) (attendance.SessionRepository, func(), error) {
	if opts.store == config.StoreDriverPostgres {
		db, err := database.NewPostgreSQLDB(ctx, opts.dsn, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		return postgresql.NewSessionRepository(db, loc), db.Close, nil
	}

	store, err := sqlite.New(opts.sqlitePath, sqlite.WithLocation(loc))
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return sqlite.NewSessionRepository(store), func() { store.Close() }, nil
}

type summaryPrinter struct {
	logger  *slog.Logger
	verbose bool
	loc     *time.Location
}

// print runs under the controller lock and must not call back into it.
func (p *summaryPrinter) print(state live.LiveViewState) {
	if state.Loading || state.Data == nil {
		return
	}

	sum := state.Data.Summary
	p.logger.Info("Live attendance",
		"version", state.Version,
		"at", sum.EvaluationInstant.In(p.loc).Format(time.Kitchen),
		"active", sum.TotalActive,
		"working", sum.Working,
		"on_break", sum.OnBreak,
		"late", sum.Late,
		"overtime", sum.Overtime,
		"incomplete", sum.Incomplete,
		"inconsistent", sum.Inconsistent,
		"online", state.Online,
	)

	if !p.verbose {
		return
	}
	for _, s := range state.Data.Sessions {
		resp := attendance.NewSessionResponse(s, p.loc)
		p.logger.Info("Session",
			"employee", resp.EmployeeName,
			"status", resp.Status,
			"clock_in", resp.ClockInDisplay,
			"worked", resp.WorkedDisplay,
			"late_minutes", resp.LateMinutes,
			"overtime", resp.OvertimeDisplay,
		)
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `livewatch follows the live attendance view of one company.

Usage:
  livewatch --company <id> [flags]

Send SIGUSR1 to pause or resume polling and SIGUSR2 to refresh now.

Flags:
`)
	flagSet.PrintDefaults()
}
