package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRoleExpirySweep deactivates role assignments past their expiry.
	TaskRoleExpirySweep = "rbac:role_expiry_sweep"
)

// RoleSweeper flips the active flag off for expired role assignments.
type RoleSweeper interface {
	DeactivateExpired(ctx context.Context) (int64, error)
}

// NewRoleExpirySweepTask constructs the sweep task. The task carries no
// payload; the sweep always covers every user.
func NewRoleExpirySweepTask() *asynq.Task {
	return asynq.NewTask(TaskRoleExpirySweep, nil)
}

// NewRoleExpirySweepHandler returns the handler processing sweep tasks.
func NewRoleExpirySweepHandler(sweeper RoleSweeper, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		n, err := sweeper.DeactivateExpired(ctx)
		if err != nil {
			if logger != nil {
				logger.Error("role expiry sweep", slog.Any("error", err))
			}
			return err
		}
		if logger != nil {
			logger.Info("role expiry sweep complete", slog.Int64("deactivated", n))
		}
		return nil
	}
}
