package cluster

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/determined-ai/devicegate/internal/sproto"
	"github.com/determined-ai/devicegate/pkg/model"
)

// SimulatedLauncher logs the steps of an item and then holds its executor for the
// task's configured duration. It stands in for a real build agent.
type SimulatedLauncher struct {
	Clock clockwork.Clock
	// Duration returns how long the task occupies its executor.
	Duration func(task model.Task) time.Duration
}

// Launch implements Launcher.
func (l *SimulatedLauncher) Launch(ctx context.Context, item *sproto.Item) error {
	entry := log.WithFields(log.Fields{"item": item.ID, "task": item.Task.DisplayName()})
	for i, step := range model.StepsOf(item.Task) {
		switch s := step.(type) {
		case model.DeployStep:
			entry.WithField("step", i).Infof("deploying to %s", s.UDID)
		case model.ShellStep:
			entry.WithField("step", i).Infof("running %q", s.Command)
		default:
			entry.WithField("step", i).Infof("running %s step", step.StepType())
		}
	}

	var d time.Duration
	if l.Duration != nil {
		d = l.Duration(item.Task)
	}
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-l.Clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
