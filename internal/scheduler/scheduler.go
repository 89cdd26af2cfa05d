package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"EMAScreener/internal/logging"
	"EMAScreener/internal/model"
	"EMAScreener/internal/notifier"
	"EMAScreener/internal/recorder"
	"EMAScreener/internal/report"
	"EMAScreener/internal/runstate"
	"EMAScreener/internal/screener"
	"EMAScreener/internal/universe"
)

// Notifier delivers a summary message and the report file to chat.
type Notifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
	SendDocumentWithRetry(ctx context.Context, filename string, data []byte, caption string, maxRetries int) error
}

// Mailer delivers the report by email.
type Mailer interface {
	SendReport(ctx context.Context, sum report.Summary, csv []byte) error
}

// Output controls where report artifacts are written.
type Output struct {
	Dir      string
	BaseName string
}

// RunOptions tweak a single run.
type RunOptions struct {
	Force  bool // re-run a date that already completed
	DryRun bool // screen only: no file, delivery, history or state
}

// Result is the outcome of one run.
type Result struct {
	Report         *model.AnalysisReport
	Summary        report.Summary
	Path           string
	CSV            []byte
	DeliveryErrors []error
}

// Scheduler owns the daily screen job and the chat commands that drive it.
type Scheduler struct {
	Cron     *cron.Cron
	Screener *screener.Screener
	Universe *universe.Loader
	Source   universe.Source
	State    *runstate.Manager
	Notifier Notifier // optional
	Mailer   Mailer   // optional
	Recorder recorder.Recorder
	Output   Output
	Provider string
	Timeout  time.Duration
	Logger   *zap.Logger
	Ctx      context.Context

	Now func() time.Time

	mu sync.Mutex
}

// NewScheduler creates a new Scheduler. Optional collaborators are set on the
// returned value.
func NewScheduler(ctx context.Context, scr *screener.Screener, loader *universe.Loader, src universe.Source,
	state *runstate.Manager, rec recorder.Recorder, out Output, logger *zap.Logger) *Scheduler {
	logger = logging.OrNop(logger)
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds(), cron.WithLogger(cronLogger{logger.Sugar()})),
		Screener: scr,
		Universe: loader,
		Source:   src,
		State:    state,
		Recorder: rec,
		Output:   out,
		Logger:   logger,
		Ctx:      ctx,
		Now:      time.Now,
	}
}

// Register schedules the daily screen; the cron expression is read in loc.
func (s *Scheduler) Register(dailyCron string, loc *time.Location) error {
	if loc != nil {
		s.Cron = cron.New(cron.WithSeconds(), cron.WithLocation(loc),
			cron.WithLogger(cronLogger{s.Logger.Sugar()}))
	}
	if _, err := s.Cron.AddFunc(dailyCron, s.dailyTask); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Logger.Info("scheduler started", zap.Int("jobs", len(s.Cron.Entries())))
}

// Stop stops the cron scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Logger.Info("scheduler stopped")
}

func (s *Scheduler) dailyTask() {
	_, err := s.RunOnce(s.Ctx, RunOptions{})
	switch {
	case err == nil:
	case errors.Is(err, runstate.ErrAlreadyDone), errors.Is(err, runstate.ErrRunning):
		s.Logger.Info("daily screen not started", zap.Error(err))
	default:
		s.Logger.Error("daily screen failed", zap.Error(err))
		s.trySend(fmt.Sprintf("❌ Daily screen failed: %v", err))
	}
}

// RunOnce runs one screen end to end. Delivery and history failures are
// logged and returned in Result.DeliveryErrors; they do not fail the run.
func (s *Scheduler) RunOnce(ctx context.Context, opts RunOptions) (*Result, error) {
	if !s.mu.TryLock() {
		return nil, runstate.ErrRunning
	}
	defer s.mu.Unlock()

	if !opts.DryRun {
		if err := s.State.Begin(s.Now(), opts.Force); err != nil {
			return nil, err
		}
	}
	res, err := s.run(ctx, opts)
	if err != nil {
		if !opts.DryRun {
			s.State.Abort()
		}
		return nil, err
	}
	return res, nil
}

func (s *Scheduler) run(ctx context.Context, opts RunOptions) (*Result, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	symbols, err := s.Universe.Load(ctx, s.Source)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}

	rep, err := s.Screener.Analyze(ctx, symbols)
	if err != nil {
		return nil, err
	}

	res := &Result{Report: rep}
	if opts.DryRun {
		res.CSV, err = report.ToTable(rep)
		if err != nil {
			return nil, err
		}
		res.Summary = report.NewSummary(rep, report.Filename(s.Output.BaseName, rep.RunDate))
		return res, nil
	}

	res.Path, res.CSV, err = report.Save(s.Output.Dir, s.Output.BaseName, rep)
	if err != nil {
		return nil, err
	}
	res.Summary = report.NewSummary(rep, filepath.Base(res.Path))
	s.Logger.Info("report written",
		zap.String("path", res.Path),
		zap.Int("qualifying", rep.QualifyingStocks),
		zap.Int("total", rep.TotalStocks))

	res.DeliveryErrors = s.deliver(ctx, res)

	if err := s.Recorder.RecordRun(ctx, rep, s.Provider, res.Path); err != nil {
		s.Logger.Error("record run failed", zap.Error(err))
		res.DeliveryErrors = append(res.DeliveryErrors, fmt.Errorf("record run: %w", err))
	}
	if err := s.State.Finish(res.Summary, res.Path); err != nil {
		s.Logger.Error("save run state failed", zap.Error(err))
		res.DeliveryErrors = append(res.DeliveryErrors, err)
	}
	return res, nil
}

func (s *Scheduler) deliver(ctx context.Context, res *Result) []error {
	var errs []error
	if s.Mailer != nil {
		if err := s.Mailer.SendReport(ctx, res.Summary, res.CSV); err != nil {
			s.Logger.Error("email delivery failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}
	if s.Notifier != nil {
		if err := s.Notifier.SendWithRetry(ctx, notifier.FormatSummary(res.Summary), 3); err != nil {
			s.Logger.Error("telegram summary failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("telegram summary: %w", err))
		} else if err := s.Notifier.SendDocumentWithRetry(ctx, res.Summary.Filename, res.CSV, "", 3); err != nil {
			s.Logger.Error("telegram document failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("telegram document: %w", err))
		}
	}
	return errs
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.HelpText()
	}
	command = strings.ToLower(fields[0])
	if i := strings.IndexByte(command, '@'); i > 0 {
		command = command[:i]
	}
	switch command {
	case "/screen":
		res, err := s.RunOnce(ctx, RunOptions{Force: true})
		if err != nil {
			return fmt.Sprintf("❌ Screen failed: %v", err)
		}
		if s.Notifier == nil {
			return notifier.FormatSummary(res.Summary)
		}
		return ""
	case "/last":
		return notifier.FormatLastRun(s.State.GetState())
	case "/history":
		runs, err := s.Recorder.LastRuns(ctx, 10)
		if err != nil {
			return fmt.Sprintf("❌ History unavailable: %v", err)
		}
		return notifier.FormatHistory(runs)
	default:
		return notifier.HelpText()
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.Logger.Error("send notification failed", zap.Error(err))
	}
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
