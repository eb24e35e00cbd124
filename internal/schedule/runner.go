package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Default triggers: open at 21:00 and 09:00 UTC (06:00 and 18:00 KST) and
// close ten minutes before each open.
const (
	DefaultOpenSpec  = "0 9,21 * * *"
	DefaultCloseSpec = "50 8,20 * * *"
)

// Triggers is the lifecycle entry point the runner drives.
type Triggers interface {
	ScheduledOpen(ctx context.Context)
	ScheduledClose(ctx context.Context)
}

// Config holds cron specs in the standard five-field form or descriptors
// such as "@every 1h". An empty spec disables that trigger.
type Config struct {
	OpenSpec  string
	CloseSpec string
	Location  *time.Location
	// Timeout bounds a single trigger run; zero means no bound.
	Timeout time.Duration
}

// Runner fires the recurring Open and Close triggers.
type Runner struct {
	cron    *cron.Cron
	log     zerolog.Logger
	timeout time.Duration
	base    context.Context
	cancel  context.CancelFunc
	closeID cron.EntryID
}

func NewRunner(triggers Triggers, cfg Config, log zerolog.Logger) (*Runner, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	log = log.With().Str("component", "scheduler").Logger()
	base, cancel := context.WithCancel(context.Background())
	r := &Runner{
		log:     log,
		timeout: cfg.Timeout,
		base:    base,
		cancel:  cancel,
	}
	adapter := cronLogger{log: log}
	r.cron = cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter)),
	)

	if _, err := r.add("open", cfg.OpenSpec, triggers.ScheduledOpen); err != nil {
		cancel()
		return nil, err
	}
	closeID, err := r.add("close", cfg.CloseSpec, triggers.ScheduledClose)
	if err != nil {
		cancel()
		return nil, err
	}
	r.closeID = closeID
	return r, nil
}

func (r *Runner) add(name, spec string, fire func(context.Context)) (cron.EntryID, error) {
	if spec == "" {
		return 0, nil
	}
	id, err := r.cron.AddFunc(spec, func() {
		ctx := r.base
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		started := time.Now()
		r.log.Info().Str("trigger", name).Msg("trigger fired")
		fire(ctx)
		r.log.Debug().Str("trigger", name).Dur("took", time.Since(started)).Msg("trigger done")
	})
	if err != nil {
		return 0, fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
	}
	return id, nil
}

// NextClose reports when the close trigger fires next. It reports false when
// the close trigger is disabled or the runner has not been started.
func (r *Runner) NextClose() (time.Time, bool) {
	if r.closeID == 0 {
		return time.Time{}, false
	}
	e := r.cron.Entry(r.closeID)
	if !e.Valid() || e.Next.IsZero() {
		return time.Time{}, false
	}
	return e.Next, true
}

// Start begins firing triggers in the background.
func (r *Runner) Start() {
	r.cron.Start()
	for _, e := range r.cron.Entries() {
		r.log.Info().Int("entry", int(e.ID)).Time("next", e.Next).Msg("trigger scheduled")
	}
}

// Stop cancels running triggers and waits for them to return or ctx to end.
func (r *Runner) Stop(ctx context.Context) {
	done := r.cron.Stop()
	r.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		r.log.Warn().Msg("scheduler stop timed out")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
