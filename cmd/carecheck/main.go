package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/CareCheck/internal/api"
	"github.com/BTreeMap/CareCheck/internal/assignment"
	"github.com/BTreeMap/CareCheck/internal/auth"
	"github.com/BTreeMap/CareCheck/internal/lockfile"
	"github.com/BTreeMap/CareCheck/internal/messaging"
	"github.com/BTreeMap/CareCheck/internal/response"
	"github.com/BTreeMap/CareCheck/internal/scheduler"
	"github.com/BTreeMap/CareCheck/internal/store"
	"github.com/BTreeMap/CareCheck/internal/survey"
	"github.com/BTreeMap/CareCheck/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for CareCheck state data
	DefaultStateDir = "/var/lib/carecheck"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "carecheck.db"
	// DefaultCheckInDueDays is how many days after the week start a check-in is due
	DefaultCheckInDueDays = 6
	// DefaultOutboxPoll is how often queued notifications are retried
	DefaultOutboxPoll = 5 * time.Second
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()

	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	if flags.issueToken != "" {
		if err := issueToken(os.Stdout, flags); err != nil {
			slog.Error("Failed to issue token", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		slog.Error("CareCheck failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("CareCheck exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir        string
	DatabaseURL     string
	APIAddr         string
	JWTSecret       string
	CheckInSchedule string
	CheckInDueDays  int
	Timezone        string
	NotifyEnabled   bool
	TwilioSID       string
	TwilioToken     string
	TwilioFrom      string
}

// Flags holds command line flag values
type Flags struct {
	stateDir        string
	dbDSN           string
	apiAddr         string
	jwtSecret       string
	checkInSchedule string
	checkInDueDays  int
	timezone        string
	notify          bool
	issueToken      string
	issueRole       string
	issueTTL        time.Duration
	twilioSID       string
	twilioToken     string
	twilioFrom      string
}

// initializeLogger sets up structured logging; CARECHECK_LOG_LEVEL selects the level.
func initializeLogger() {
	level := slog.LevelInfo
	if raw := os.Getenv("CARECHECK_LOG_LEVEL"); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			level = slog.LevelInfo
		}
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:        os.Getenv("CARECHECK_STATE_DIR"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		APIAddr:         os.Getenv("API_ADDR"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		CheckInSchedule: os.Getenv("CHECKIN_SCHEDULE"),
		CheckInDueDays:  util.ParseIntEnv("CHECKIN_DUE_DAYS", DefaultCheckInDueDays),
		Timezone:        os.Getenv("CARECHECK_TIMEZONE"),
		NotifyEnabled:   util.ParseBoolEnv("NOTIFY_ENABLED", false),
		TwilioSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:     os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:      os.Getenv("TWILIO_FROM_NUMBER"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CARECHECK_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.CheckInSchedule == "" {
		config.CheckInSchedule = scheduler.DefaultCheckInSchedule
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}

	slog.Debug("environment variables loaded",
		"CARECHECK_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"JWT_SECRET_SET", config.JWTSecret != "",
		"CHECKIN_SCHEDULE", config.CheckInSchedule,
		"CHECKIN_DUE_DAYS", config.CheckInDueDays,
		"CARECHECK_TIMEZONE", config.Timezone,
		"NOTIFY_ENABLED", config.NotifyEnabled,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	var f Flags
	fs.StringVar(&f.stateDir, "state-dir", config.StateDir, "state directory for CareCheck data (overrides $CARECHECK_STATE_DIR)")
	fs.StringVar(&f.dbDSN, "db-dsn", config.DatabaseURL, "database DSN; empty means SQLite in the state directory (overrides $DATABASE_URL)")
	fs.StringVar(&f.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&f.jwtSecret, "jwt-secret", config.JWTSecret, "HMAC secret for bearer tokens (overrides $JWT_SECRET)")
	fs.StringVar(&f.checkInSchedule, "checkin-schedule", config.CheckInSchedule, "cron schedule for weekly check-ins (overrides $CHECKIN_SCHEDULE)")
	fs.IntVar(&f.checkInDueDays, "checkin-due-days", config.CheckInDueDays, "days after the week start a check-in is due (overrides $CHECKIN_DUE_DAYS)")
	fs.StringVar(&f.timezone, "timezone", config.Timezone, "agency IANA time zone (overrides $CARECHECK_TIMEZONE)")
	fs.BoolVar(&f.notify, "notify", config.NotifyEnabled, "send SMS for new assignments (overrides $NOTIFY_ENABLED)")
	fs.StringVar(&f.issueToken, "issue-token", "", "print a bearer token for this user id and exit")
	fs.StringVar(&f.issueRole, "issue-role", string(auth.RoleCaregiver), "role for -issue-token: admin or caregiver")
	fs.DurationVar(&f.issueTTL, "issue-ttl", 24*time.Hour, "lifetime for -issue-token")
	f.twilioSID, f.twilioToken, f.twilioFrom = config.TwilioSID, config.TwilioToken, config.TwilioFrom

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	if f.dbDSN == "" {
		f.dbDSN = filepath.Join(f.stateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", f.dbDSN)
	}

	slog.Debug("flags parsed",
		"stateDir", f.stateDir,
		"dbDSN_set", f.dbDSN != "",
		"apiAddr", f.apiAddr,
		"checkInSchedule", f.checkInSchedule,
		"checkInDueDays", f.checkInDueDays,
		"timezone", f.timezone,
		"notify", f.notify)
	return f, nil
}

// issueToken writes a signed bearer token for operators bootstrapping clients.
func issueToken(w io.Writer, flags Flags) error {
	role := auth.Role(flags.issueRole)
	if role != auth.RoleAdmin && role != auth.RoleCaregiver {
		return fmt.Errorf("unknown role %q", flags.issueRole)
	}
	verifier, err := auth.NewVerifier(flags.jwtSecret)
	if err != nil {
		return err
	}
	token, err := verifier.Issue(flags.issueToken, role, flags.issueTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	if store.DetectDSNType(flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return []store.Option{store.WithPostgresDSN(flags.dbDSN)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", flags.dbDSN)
	return []store.Option{store.WithSQLiteDSN(flags.dbDSN)}
}

// usesLocalState reports whether the store lives in the state directory and needs the
// single-instance lock.
func usesLocalState(flags Flags) bool {
	return store.DetectDSNType(flags.dbDSN) != "postgres" && !strings.HasPrefix(flags.dbDSN, ":memory:")
}

// buildMessagingService picks Twilio when credentials exist and otherwise records
// messages in memory so assignments still flow through the outbox.
func buildMessagingService(flags Flags) messaging.Service {
	if flags.twilioSID == "" && flags.twilioToken == "" {
		slog.Warn("Notifications enabled without Twilio credentials, messages will only be logged")
		return messaging.NewRecordingService()
	}
	svc, err := messaging.NewTwilioService(
		messaging.WithAccountSID(flags.twilioSID),
		messaging.WithAuthToken(flags.twilioToken),
		messaging.WithFromNumber(flags.twilioFrom),
	)
	if err != nil {
		slog.Error("Twilio configuration invalid, messages will only be logged", "error", err)
		return messaging.NewRecordingService()
	}
	return svc
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.apiAddr))
	}
	return apiOpts
}

// run wires the services together and blocks until ctx is cancelled.
func run(ctx context.Context, flags Flags) error {
	verifier, err := auth.NewVerifier(flags.jwtSecret)
	if err != nil {
		return fmt.Errorf("JWT_SECRET: %w", err)
	}
	loc := util.LoadLocation(flags.timezone)

	if usesLocalState(flags) {
		lock, err := lockfile.AcquireLock(filepath.Dir(flags.dbDSN))
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := store.New(buildStoreOptions(flags)...)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	surveys := survey.NewService(st)
	tracker := assignment.NewTracker(st, surveys,
		assignment.WithLocation(loc),
		assignment.WithCheckInDueDays(flags.checkInDueDays),
		assignment.WithNotifications(flags.notify),
	)
	responses := response.NewService(st, surveys)

	sched := scheduler.NewScheduler(loc)
	defer sched.Stop()
	if err := sched.ScheduleWeeklyCheckIns(flags.checkInSchedule, tracker); err != nil {
		return fmt.Errorf("CHECKIN_SCHEDULE: %w", err)
	}
	// A server started mid-week should not wait for the next cron tick.
	scheduler.WeeklyCheckInJob(tracker, loc, time.Now)()

	if flags.notify {
		notifier := messaging.NewNotifier(buildMessagingService(flags), st, loc)
		sender := store.NewOutboxSender(st, notifier.Send, DefaultOutboxPoll)
		if err := sender.RecoverStaleMessages(); err != nil {
			slog.Warn("Outbox recovery failed", "error", err)
		}
		go sender.Run(ctx)
	}

	server := api.NewServer(api.Deps{
		Store:     st,
		Surveys:   surveys,
		Tracker:   tracker,
		Responses: responses,
		Verifier:  verifier,
	}, buildAPIOptions(flags)...)

	slog.Info("Bootstrapping CareCheck", "state_dir", flags.stateDir, "api_addr", flags.apiAddr, "timezone", loc.String())
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
