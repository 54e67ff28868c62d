package observer

import (
	"context"

	"github.com/dcshock/stageflow/pipeline"
	"go.uber.org/zap"
)

// LogObserver writes lifecycle events to a zap logger: starts and completions
// at info, retried failures at warn, terminal failures at error.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver returns a LogObserver. A nil logger discards events.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) OnRunStart(_ context.Context, ev pipeline.RunStart) error {
	o.logger.Info("run started",
		zap.String("run_id", ev.RunID),
		zap.String("name", ev.Name),
		zap.Strings("plan", ev.Plan),
		zap.Strings("restored", ev.Restored),
	)
	return nil
}

func (o *LogObserver) OnRunEnd(_ context.Context, res *pipeline.Result) error {
	fields := []zap.Field{
		zap.String("run_id", res.RunID),
		zap.String("status", runStatus(res)),
		zap.Int("executed", len(res.Executed)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failed)),
		zap.Duration("duration", res.TotalDuration),
	}
	if res.Message != "" {
		fields = append(fields, zap.String("message", res.Message))
	}
	if res.FirstErr != nil {
		fields = append(fields, zap.Error(res.FirstErr))
	}
	if res.Success {
		o.logger.Info("run finished", fields...)
	} else {
		o.logger.Warn("run finished", fields...)
	}
	return nil
}

func (o *LogObserver) OnStageStart(_ context.Context, ev pipeline.StageStart) error {
	o.logger.Info("stage started", zap.String("run_id", ev.RunID), zap.String("stage", ev.StageID))
	return nil
}

func (o *LogObserver) OnStageComplete(_ context.Context, ev pipeline.StageComplete) error {
	o.logger.Info("stage completed",
		zap.String("run_id", ev.RunID),
		zap.String("stage", ev.StageID),
		zap.Int("attempt", ev.Attempt),
		zap.Duration("duration", ev.Duration),
	)
	return nil
}

func (o *LogObserver) OnStageError(_ context.Context, ev pipeline.StageError) error {
	fields := []zap.Field{
		zap.String("run_id", ev.RunID),
		zap.String("stage", ev.StageID),
		zap.Int("attempt", ev.Attempt),
		zap.Error(ev.Err),
	}
	if ev.WillRetry {
		o.logger.Warn("stage failed, retrying", fields...)
	} else {
		o.logger.Error("stage failed", fields...)
	}
	return nil
}

var (
	_ pipeline.Observer    = (*LogObserver)(nil)
	_ pipeline.RunObserver = (*LogObserver)(nil)
)
