package runner

import (
	"context"

	"go.uber.org/zap"

	"github.com/teester/teester/internal/logging"
)

// Hook is the base interface for run observers.
type Hook interface {
	ID() string
}

// RunStartHook is called before the first test of a run.
type RunStartHook interface {
	OnRunStart(ctx context.Context, r *Report) error
}

// TestResultHook is called after each test result is recorded.
type TestResultHook interface {
	OnTestResult(ctx context.Context, r *Report, res Result) error
}

// RunFinishHook is called once the run is complete.
type RunFinishHook interface {
	OnRunFinish(ctx context.Context, r *Report) error
}

// Pipeline dispatches run events to registered hooks in registration order.
// Hook errors are logged and never affect the run.
type Pipeline struct {
	hooks  []Hook
	start  []RunStartHook
	result []TestResultHook
	finish []RunFinishHook
	logger *zap.Logger
}

// NewPipeline creates an empty Pipeline.
func NewPipeline(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{logger: logger}
}

// Register detects which capability interfaces a hook implements.
func (p *Pipeline) Register(hook Hook) {
	p.hooks = append(p.hooks, hook)
	if h, ok := hook.(RunStartHook); ok {
		p.start = append(p.start, h)
	}
	if h, ok := hook.(TestResultHook); ok {
		p.result = append(p.result, h)
	}
	if h, ok := hook.(RunFinishHook); ok {
		p.finish = append(p.finish, h)
	}
}

// List returns the IDs of all registered hooks.
func (p *Pipeline) List() []string {
	ids := make([]string, 0, len(p.hooks))
	for _, h := range p.hooks {
		ids = append(ids, h.ID())
	}
	return ids
}

func (p *Pipeline) runStart(ctx context.Context, r *Report) {
	for _, h := range p.start {
		if err := h.OnRunStart(ctx, r); err != nil {
			p.logger.Warn("run start hook error", zap.String("hook", hookID(h)), zap.Error(err))
		}
	}
}

func (p *Pipeline) testResult(ctx context.Context, r *Report, res Result) {
	for _, h := range p.result {
		if err := h.OnTestResult(ctx, r, res); err != nil {
			p.logger.Warn("test result hook error", zap.String("hook", hookID(h)), zap.Error(err))
		}
	}
}

func (p *Pipeline) runFinish(ctx context.Context, r *Report) {
	for _, h := range p.finish {
		if err := h.OnRunFinish(ctx, r); err != nil {
			p.logger.Warn("run finish hook error", zap.String("hook", hookID(h)), zap.Error(err))
		}
	}
}

func hookID(h any) string {
	if hk, ok := h.(Hook); ok {
		return hk.ID()
	}
	return "unknown"
}

// LoggingHook logs each result and a summary line per run.
type LoggingHook struct {
	Logger *zap.Logger
}

func (h *LoggingHook) ID() string { return "logging" }

func (h *LoggingHook) OnRunStart(_ context.Context, r *Report) error {
	h.Logger.Info("run started",
		logging.RunID(r.RunID),
		logging.Project(r.ProjectID),
		logging.Collection(r.CollectionID),
	)
	return nil
}

func (h *LoggingHook) OnTestResult(_ context.Context, r *Report, res Result) error {
	fields := []zap.Field{
		logging.RunID(r.RunID),
		logging.TestID(res.TestID),
		logging.TestName(res.Name),
		logging.Pass(res.Assert),
		logging.Elapsed(res.Duration),
	}
	if res.Status != nil {
		fields = append(fields, logging.Status(*res.Status))
	}
	if res.Error != "" {
		fields = append(fields, zap.String("error", res.Error))
	}
	h.Logger.Info("test finished", fields...)
	return nil
}

func (h *LoggingHook) OnRunFinish(_ context.Context, r *Report) error {
	h.Logger.Info("run finished",
		logging.RunID(r.RunID),
		zap.Int("passed", r.Passed),
		zap.Int("failed", r.Failed),
		logging.Elapsed(r.Finished.Sub(r.Started)),
	)
	return nil
}
