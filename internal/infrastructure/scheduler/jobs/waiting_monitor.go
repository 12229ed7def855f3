package jobs

import (
	"context"
	"log/slog"

	"github.com/bykc-hub/bykc-assistant/internal/application/command"
)

// WaitingMonitorJob runs the waiting pass: every record in the Waiting
// status gets one fresh choose attempt, claiming seats freed by
// cancellations.
type WaitingMonitorJob struct {
	monitor *command.MonitorWaitingHandler
	logger  *slog.Logger
}

// NewWaitingMonitorJob creates the job.
func NewWaitingMonitorJob(monitor *command.MonitorWaitingHandler, logger *slog.Logger) *WaitingMonitorJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &WaitingMonitorJob{
		monitor: monitor,
		logger:  logger,
	}
}

// Name returns the unique name of the job.
func (j *WaitingMonitorJob) Name() string {
	return "waiting_monitor"
}

// Description returns a human-readable description of the job.
func (j *WaitingMonitorJob) Description() string {
	return "Retries full courses, claiming seats freed by cancellations"
}

// Run executes one monitoring pass.
func (j *WaitingMonitorJob) Run(ctx context.Context) error {
	return j.monitor.Handle(ctx)
}
