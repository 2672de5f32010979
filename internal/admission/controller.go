// Package admission keeps two items that deploy to the same physical device from being
// admitted at the same time.
package admission

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/determined-ai/devicegate/internal/sproto"
	"github.com/determined-ai/devicegate/pkg/device"
	"github.com/determined-ai/devicegate/pkg/model"
)

// KeyResolver maps a task to the device it deploys to.
type KeyResolver interface {
	Resolve(task model.Task) (device.UDID, bool)
}

// Controller decides whether a queue item may be admitted. It holds no state of its own:
// every decision is recomputed from fresh snapshots of the pending items and the
// running items. Decisions are advisory; the scheduler asks again on every maintenance
// pass until the device is free.
type Controller struct {
	resolver KeyResolver
	pending  sproto.PendingLister
	running  sproto.RunningLister
	messages *Messages
}

// New returns a Controller. A nil messages uses the default blockage wording.
func New(
	resolver KeyResolver,
	pending sproto.PendingLister,
	running sproto.RunningLister,
	messages *Messages,
) *Controller {
	if messages == nil {
		messages = DefaultMessages()
	}
	return &Controller{
		resolver: resolver,
		pending:  pending,
		running:  running,
		messages: messages,
	}
}

// CanRun returns nil if the candidate may be admitted now, or the cause that blocks it.
// Failures to resolve a task or to list collaborators never block: they admit.
func (c *Controller) CanRun(candidate *sproto.Item) *sproto.CauseOfBlockage {
	if candidate == nil {
		return nil
	}
	udid, ok := c.resolver.Resolve(candidate.Task)
	if !ok {
		decisions.WithLabelValues(resultUnconstrained).Inc()
		return nil
	}

	timer := newTimer()
	defer timer.observe()

	if c.conflicts(candidate, udid, "pending", c.pendingItems) ||
		c.conflicts(candidate, udid, "running", c.runningItems) {
		decisions.WithLabelValues(resultBlocked).Inc()
		return &sproto.CauseOfBlockage{
			Device:  udid,
			Message: c.messages.Render(udid),
		}
	}

	decisions.WithLabelValues(resultAdmitted).Inc()
	return nil
}

// conflicts reports whether any item other than the candidate resolves to udid.
func (c *Controller) conflicts(
	candidate *sproto.Item,
	udid device.UDID,
	phase string,
	list func() ([]*sproto.Item, error),
) bool {
	items, err := safeList(list)
	if err != nil {
		log.WithError(err).WithField("phase", phase).
			Warn("cannot list items for device admission, assuming none")
		return false
	}
	for _, item := range items {
		if item == nil || item == candidate {
			continue
		}
		if other, ok := c.resolver.Resolve(item.Task); ok && other == udid {
			log.WithFields(log.Fields{
				"item":    candidate.ID,
				"holder":  item.ID,
				"device":  udid,
				"phase":   phase,
				"task":    taskName(candidate.Task),
				"blocker": taskName(item.Task),
			}).Debug("device is busy")
			return true
		}
	}
	return false
}

func (c *Controller) pendingItems() ([]*sproto.Item, error) {
	if c.pending == nil {
		return nil, sproto.ErrNotReady
	}
	return c.pending.PendingItems()
}

func (c *Controller) runningItems() ([]*sproto.Item, error) {
	if c.running == nil {
		return nil, sproto.ErrNotReady
	}
	return c.running.RunningItems()
}

// safeList turns a panicking collaborator into an error.
func safeList(list func() ([]*sproto.Item, error)) (items []*sproto.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			items, err = nil, fmt.Errorf("listing items panicked: %v", r)
		}
	}()
	return list()
}

func taskName(task model.Task) string {
	if task == nil {
		return ""
	}
	return task.DisplayName()
}
