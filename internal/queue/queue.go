// Package queue holds submitted items until they are admitted and handed to an executor.
package queue

import (
	"strings"
	"sync"
	"time"

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/determined-ai/devicegate/internal/sproto"
	"github.com/determined-ai/devicegate/pkg/model"
)

// Dispatcher vetoes the admission of an item. A nil cause lets the item through.
type Dispatcher interface {
	CanRun(item *sproto.Item) *sproto.CauseOfBlockage
}

// ExecutorPool accepts admitted items. Offer returns false if no executor is free.
type ExecutorPool interface {
	Offer(item *sproto.Item) bool
}

type entry struct {
	item  *sproto.Item
	state sproto.ItemState
	cause *sproto.CauseOfBlockage
}

// ItemSummary is an immutable view of a queued item.
type ItemSummary struct {
	ID          sproto.ItemID           `json:"id"`
	Task        string                  `json:"task"`
	Kind        model.TaskKind          `json:"kind"`
	State       sproto.ItemState        `json:"state"`
	Cause       *sproto.CauseOfBlockage `json:"cause,omitempty"`
	SubmittedAt time.Time               `json:"submitted_at"`
}

// Queue maintains waiting and pending items in submission order.
type Queue struct {
	clock       clockwork.Clock
	dispatchers []Dispatcher
	triggers    chan struct{}

	// maintainMu serializes maintenance passes; mu guards the fields below.
	maintainMu sync.Mutex
	mu         sync.Mutex
	ready      bool
	byTime     *treeset.Set
	byID       map[sproto.ItemID]*entry
}

// New constructs a Queue. Dispatchers are consulted in order.
func New(clock clockwork.Clock, dispatchers ...Dispatcher) *Queue {
	return &Queue{
		clock:       clock,
		dispatchers: dispatchers,
		triggers:    make(chan struct{}, 1),
		byTime: treeset.NewWith(func(a, b interface{}) int {
			return itemComparator(a.(*entry).item, b.(*entry).item)
		}),
		byID: make(map[sproto.ItemID]*entry),
	}
}

// AddDispatcher appends a dispatcher. It must be called before Start.
func (q *Queue) AddDispatcher(d Dispatcher) {
	q.dispatchers = append(q.dispatchers, d)
}

// Start makes the queue available to readers.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = true
}

// Close makes the queue unavailable. Items are kept.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = false
}

// Triggers receives a value whenever the queue changed in a way that warrants maintenance.
func (q *Queue) Triggers() <-chan struct{} {
	return q.triggers
}

// Trigger asks for a maintenance pass without blocking.
func (q *Queue) Trigger() {
	select {
	case q.triggers <- struct{}{}:
	default:
	}
}

// Submit enqueues a new item for the task.
func (q *Queue) Submit(task model.Task) *sproto.Item {
	item := sproto.NewItem(task, q.clock.Now())
	q.mu.Lock()
	e := &entry{item: item, state: sproto.ItemWaiting}
	q.byTime.Add(e)
	q.byID[item.ID] = e
	q.mu.Unlock()

	log.WithFields(log.Fields{"item": item.ID, "task": task.DisplayName()}).Info("item submitted")
	q.Trigger()
	return item
}

// Cancel removes a waiting or pending item. It returns false if the item is not queued.
func (q *Queue) Cancel(id sproto.ItemID) bool {
	q.mu.Lock()
	e, ok := q.byID[id]
	if ok {
		q.remove(e)
	}
	q.mu.Unlock()

	if ok {
		log.WithField("item", id).Info("item cancelled")
		q.Trigger()
	}
	return ok
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byID)
}

// PendingItems returns the items admitted but not yet handed to an executor.
func (q *Queue) PendingItems() ([]*sproto.Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.ready {
		return nil, sproto.ErrNotReady
	}
	return q.itemsInState(sproto.ItemPending), nil
}

// Summary returns the summary of one queued item.
func (q *Queue) Summary(id sproto.ItemID) (ItemSummary, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byID[id]
	if !ok {
		return ItemSummary{}, false
	}
	return e.summary(), true
}

// Summaries returns summaries of all queued items in submission order.
func (q *Queue) Summaries() []ItemSummary {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := make([]ItemSummary, 0, len(q.byID))
	for it := q.byTime.Iterator(); it.Next(); {
		result = append(result, it.Value().(*entry).summary())
	}
	return result
}

// Maintain runs one maintenance pass: waiting items are offered to the dispatchers in
// submission order and admitted ones become pending; pending items are then offered to
// the pool. It returns the number of items handed to executors.
//
// Dispatchers run without the queue lock held, so they may read the queue. An item enters
// the pool and leaves the pending set under the lock, so a reader that lists pending items
// before running ones always sees it in at least one of the two.
func (q *Queue) Maintain(pool ExecutorPool) int {
	q.maintainMu.Lock()
	defer q.maintainMu.Unlock()

	q.mu.Lock()
	if !q.ready {
		q.mu.Unlock()
		return 0
	}
	waiting := q.entriesInState(sproto.ItemWaiting)
	q.mu.Unlock()

	for _, e := range waiting {
		cause := q.canRun(e.item)

		q.mu.Lock()
		if current, ok := q.byID[e.item.ID]; ok && current == e && e.state == sproto.ItemWaiting {
			e.cause = cause
			if cause == nil {
				e.state = sproto.ItemPending
			}
		}
		q.mu.Unlock()

		if cause == nil {
			log.WithField("item", e.item.ID).Debug("item admitted")
		}
	}

	if pool == nil {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	started := 0
	for _, e := range q.entriesInState(sproto.ItemPending) {
		if !pool.Offer(e.item) {
			break
		}
		q.remove(e)
		started++
	}
	return started
}

func (q *Queue) canRun(item *sproto.Item) *sproto.CauseOfBlockage {
	for _, d := range q.dispatchers {
		if cause := d.CanRun(item); cause != nil {
			return cause
		}
	}
	return nil
}

func (q *Queue) remove(e *entry) {
	q.byTime.Remove(e)
	delete(q.byID, e.item.ID)
}

func (q *Queue) entriesInState(state sproto.ItemState) []*entry {
	var result []*entry
	for it := q.byTime.Iterator(); it.Next(); {
		if e := it.Value().(*entry); e.state == state {
			result = append(result, e)
		}
	}
	return result
}

func (q *Queue) itemsInState(state sproto.ItemState) []*sproto.Item {
	entries := q.entriesInState(state)
	result := make([]*sproto.Item, 0, len(entries))
	for _, e := range entries {
		result = append(result, e.item)
	}
	return result
}

func (e *entry) summary() ItemSummary {
	return ItemSummary{
		ID:          e.item.ID,
		Task:        e.item.Task.DisplayName(),
		Kind:        e.item.Task.Kind(),
		State:       e.state,
		Cause:       e.cause,
		SubmittedAt: e.item.SubmittedAt,
	}
}

// itemComparator orders items by submission time, falling back to their IDs.
// The result will be 0 if a==b, -1 if a < b, and +1 if a > b.
func itemComparator(a, b *sproto.Item) int {
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		if a.SubmittedAt.Before(b.SubmittedAt) {
			return -1
		}
		return 1
	}
	return strings.Compare(string(a.ID), string(b.ID))
}
