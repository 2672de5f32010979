package sproto

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/determined-ai/devicegate/pkg/device"
	"github.com/determined-ai/devicegate/pkg/model"
)

// ErrNotReady is returned by the queue and the executor registry before they are started
// or after they are closed.
var ErrNotReady = errors.New("not ready")

// ItemID identifies a queue item.
type ItemID string

// NewItemID returns a new random ItemID.
func NewItemID() ItemID {
	return ItemID(uuid.New().String())
}

// ItemState is the scheduling state of an item.
type ItemState string

const (
	// ItemWaiting items have not been admitted yet.
	ItemWaiting ItemState = "WAITING"
	// ItemPending items were admitted and are about to take an executor.
	ItemPending ItemState = "PENDING"
	// ItemRunning items occupy an executor.
	ItemRunning ItemState = "RUNNING"
)

// Item is a live instance of a task inside the scheduler. Items are compared by pointer;
// two items of the same task are distinct.
type Item struct {
	ID          ItemID
	Task        model.Task
	SubmittedAt time.Time
}

// NewItem returns an item for the task, submitted at t.
func NewItem(task model.Task, t time.Time) *Item {
	return &Item{ID: NewItemID(), Task: task, SubmittedAt: t}
}

// CauseOfBlockage explains why an item may not be admitted yet.
type CauseOfBlockage struct {
	Device  device.UDID `json:"device"`
	Message string      `json:"message"`
}

func (c *CauseOfBlockage) String() string {
	if c == nil {
		return ""
	}
	return c.Message
}

// PendingLister lists items that were admitted but do not occupy an executor yet.
type PendingLister interface {
	PendingItems() ([]*Item, error)
}

// RunningLister lists the items occupying an executor, one per busy executor.
type RunningLister interface {
	RunningItems() ([]*Item, error)
}
