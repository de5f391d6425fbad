package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ayoisaiah/tally/internal/apperr"
	"github.com/ayoisaiah/tally/internal/calendar"
	"github.com/ayoisaiah/tally/internal/config"
	"github.com/ayoisaiah/tally/internal/control"
	"github.com/ayoisaiah/tally/internal/engine"
	"github.com/ayoisaiah/tally/internal/gateway"
	"github.com/ayoisaiah/tally/internal/logging"
	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/pathutil"
	"github.com/ayoisaiah/tally/store"
)

var errDaemonRunning = &apperr.Error{
	Message: "the tally daemon is running: stop it before using '%s'",
}

// backend is either a local engine over the database or the running daemon.
type backend interface {
	Pending(ctx context.Context) ([]*models.PendingSegment, error)
	Confirm(ctx context.Context, key, label, project string) (models.Outcome, error)
	Dismiss(ctx context.Context, key string) (models.Outcome, error)
	Records(ctx context.Context, start, end time.Time) ([]*models.RegistrationRecord, error)
	Close() error
}

type localBackend struct {
	engine *engine.Engine
	db     store.DB
}

func (l *localBackend) Pending(_ context.Context) ([]*models.PendingSegment, error) {
	return l.engine.Pending()
}

func (l *localBackend) Confirm(
	ctx context.Context,
	key, label, project string,
) (models.Outcome, error) {
	return l.engine.Confirm(ctx, key, label, project)
}

func (l *localBackend) Dismiss(ctx context.Context, key string) (models.Outcome, error) {
	return l.engine.Dismiss(ctx, key)
}

func (l *localBackend) Records(
	_ context.Context,
	start, end time.Time,
) ([]*models.RegistrationRecord, error) {
	return l.engine.Records(start, end)
}

func (l *localBackend) Close() error {
	return l.db.Close()
}

type remoteBackend struct {
	*control.Client
}

func (remoteBackend) Close() error {
	return nil
}

// session is the state shared by every command of one invocation.
type session struct {
	cfg    *config.Config
	load   func() (*config.Config, error)
	logger io.Closer
}

func (s *session) Close() error {
	return s.logger.Close()
}

// newSession loads the config, prompting on first run, and sets up logging.
func newSession(ctx *cli.Context) (*session, error) {
	err := pathutil.Initialize()
	if err != nil {
		return nil, err
	}

	path := pathutil.ConfigFilePath()

	cfg, err := config.New(
		config.WithPromptConfig(path),
		config.WithViperConfig(path),
		config.WithCLIConfig(ctx),
	)
	if err != nil {
		return nil, err
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}

	closer, err := logging.Setup(logging.Options{
		Path:       pathutil.LogFilePath(),
		Level:      level,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		Verbose:    cfg.CLI.Verbose,
		Stderr:     config.Stderr,
	})
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:    cfg,
		load:   config.Loader(path, config.WithCLIConfig(ctx)),
		logger: closer,
	}, nil
}

func (s *session) openStore() (*store.Client, error) {
	return store.NewClient(
		pathutil.DBFilePath(),
		store.WithLookback(max(s.cfg.General.Lookback, s.cfg.Segment.Bridge)),
	)
}

func (s *session) engine(db store.DB) *engine.Engine {
	return engine.New(db, newGateway(s.cfg), s.load)
}

// backend opens the database, or talks to the daemon when it holds the
// database lock.
func (s *session) backend(ctx context.Context) (backend, error) {
	db, err := s.openStore()
	if errors.Is(err, store.ErrTallyRunning) {
		slog.DebugContext(
			ctx,
			"database locked, using the daemon",
			slog.String("addr", s.cfg.Control.Addr),
		)

		return remoteBackend{control.NewClient(s.cfg.Control.Addr)}, nil
	}

	if err != nil {
		return nil, err
	}

	return &localBackend{engine: s.engine(db), db: db}, nil
}

// localStore opens the database for commands the daemon does not serve.
func (s *session) localStore(command string) (*store.Client, error) {
	db, err := s.openStore()
	if errors.Is(err, store.ErrTallyRunning) {
		return nil, errDaemonRunning.Fmt(command)
	}

	return db, err
}

func newGateway(cfg *config.Config) *gateway.Toggl {
	return gateway.NewToggl(gateway.TogglOptions{
		BaseURL:     cfg.Toggl.BaseURL,
		Token:       cfg.Toggl.Token,
		WorkspaceID: cfg.Toggl.WorkspaceID,
		Timeout:     cfg.Toggl.Timeout,
	})
}

func calendarOptions(cfg *config.Config) calendar.Options {
	return calendar.Options{
		ClientID:     cfg.Calendar.ClientID,
		ClientSecret: cfg.Calendar.ClientSecret,
		RefreshToken: cfg.Calendar.RefreshToken,
		BaseURL:      cfg.Calendar.BaseURL,
		TokenURL:     cfg.Calendar.TokenURL,
		CalendarIDs:  cfg.Calendar.CalendarIDs,
		Interval:     cfg.Calendar.SyncInterval,
		Lookahead:    cfg.Calendar.Lookahead,
	}
}
