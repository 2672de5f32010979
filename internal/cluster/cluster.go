// Package cluster tracks the executor slots of the compute nodes and runs items on them.
package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/determined-ai/devicegate/internal/sproto"
)

// ErrNodeNotFound is returned for operations on unknown nodes.
var ErrNodeNotFound = errors.New("node not found")

// Launcher runs an item to completion. It must return promptly once ctx is cancelled.
type Launcher interface {
	Launch(ctx context.Context, item *sproto.Item) error
}

// LauncherFunc adapts a function to a Launcher.
type LauncherFunc func(ctx context.Context, item *sproto.Item) error

// Launch implements Launcher.
func (f LauncherFunc) Launch(ctx context.Context, item *sproto.Item) error {
	return f(ctx, item)
}

// NodeSpec describes a node to register.
type NodeSpec struct {
	Name      string
	Executors int
	Enabled   bool
}

// executor is one unit of execution capacity. It holds at most one item.
type executor struct {
	index     int
	item      *sproto.Item
	cancel    context.CancelFunc
	startedAt time.Time
}

type node struct {
	name      string
	enabled   bool
	executors []*executor
}

func (n *node) idle() *executor {
	if !n.enabled {
		return nil
	}
	for _, e := range n.executors {
		if e.item == nil {
			return e
		}
	}
	return nil
}

// Cluster is the executor registry.
type Cluster struct {
	clock    clockwork.Clock
	launcher Launcher

	mu        sync.RWMutex
	ready     bool
	ctx       context.Context
	nodes     []*node
	byName    map[string]*node
	onRelease []func()

	wg sync.WaitGroup
}

// New registers the nodes in the given order. Offer fills nodes in that order.
func New(clock clockwork.Clock, launcher Launcher, specs []NodeSpec) *Cluster {
	c := &Cluster{
		clock:    clock,
		launcher: launcher,
		byName:   make(map[string]*node),
	}
	for _, spec := range specs {
		n := &node{name: spec.Name, enabled: spec.Enabled}
		for i := 0; i < spec.Executors; i++ {
			n.executors = append(n.executors, &executor{index: i})
		}
		c.nodes = append(c.nodes, n)
		c.byName[spec.Name] = n
	}
	return c
}

// OnRelease registers a callback run, without locks held, whenever an executor frees up.
func (c *Cluster) OnRelease(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRelease = append(c.onRelease, f)
}

// Start makes the cluster available. Launched items run under ctx.
func (c *Cluster) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = ctx
	c.ready = true
}

// Stop aborts every running item and waits for the launches to return.
func (c *Cluster) Stop() {
	c.mu.Lock()
	c.ready = false
	for _, n := range c.nodes {
		for _, e := range n.executors {
			if e.cancel != nil {
				e.cancel()
			}
		}
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// Offer starts the item on the first idle executor of an enabled node.
func (c *Cluster) Offer(item *sproto.Item) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return false
	}

	for _, n := range c.nodes {
		e := n.idle()
		if e == nil {
			continue
		}
		ctx, cancel := context.WithCancel(c.ctx)
		e.item, e.cancel, e.startedAt = item, cancel, c.clock.Now()

		log.WithFields(log.Fields{
			"item":     item.ID,
			"task":     item.Task.DisplayName(),
			"node":     n.name,
			"executor": e.index,
		}).Info("starting item")

		c.wg.Add(1)
		go c.run(ctx, n, e, item)
		return true
	}
	return false
}

func (c *Cluster) run(ctx context.Context, n *node, e *executor, item *sproto.Item) {
	defer c.wg.Done()

	err := c.launcher.Launch(ctx, item)
	fields := log.Fields{"item": item.ID, "task": item.Task.DisplayName(), "node": n.name}
	switch {
	case err == nil:
		log.WithFields(fields).Info("item finished")
	case errors.Is(err, context.Canceled):
		log.WithFields(fields).Info("item aborted")
	default:
		log.WithFields(fields).WithError(err).Warn("item failed")
	}

	c.mu.Lock()
	if e.item == item {
		e.cancel()
		e.item, e.cancel = nil, nil
	}
	callbacks := append([]func(){}, c.onRelease...)
	c.mu.Unlock()

	for _, f := range callbacks {
		f()
	}
}

// RunningItems returns the item held by each busy executor.
func (c *Cluster) RunningItems() ([]*sproto.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ready {
		return nil, sproto.ErrNotReady
	}
	var items []*sproto.Item
	for _, n := range c.nodes {
		for _, e := range n.executors {
			if e.item != nil {
				items = append(items, e.item)
			}
		}
	}
	return items, nil
}

// Abort cancels a running item. It returns false if the item is not running.
func (c *Cluster) Abort(id sproto.ItemID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.nodes {
		for _, e := range n.executors {
			if e.item != nil && e.item.ID == id {
				e.cancel()
				return true
			}
		}
	}
	return false
}

// SetEnabled enables or disables a node. Items running on a disabled node are left to
// finish; it only stops accepting new ones.
func (c *Cluster) SetEnabled(name string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.byName[name]
	if !ok {
		return errors.Wrapf(ErrNodeNotFound, "%q", name)
	}
	n.enabled = enabled
	log.WithFields(log.Fields{"node": name, "enabled": enabled}).Info("node updated")
	return nil
}
