package cluster

import (
	"time"

	"github.com/determined-ai/devicegate/internal/sproto"
)

// ExecutorSummary is an immutable view of one executor slot.
type ExecutorSummary struct {
	Index     int            `json:"index"`
	Item      *sproto.ItemID `json:"item,omitempty"`
	Task      string         `json:"task,omitempty"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
}

// NodeSummary is an immutable view of a node.
type NodeSummary struct {
	Name      string            `json:"name"`
	Enabled   bool              `json:"enabled"`
	Busy      int               `json:"busy"`
	Executors []ExecutorSummary `json:"executors"`
}

// Summaries returns the state of all nodes in registration order.
func (c *Cluster) Summaries() []NodeSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]NodeSummary, 0, len(c.nodes))
	for _, n := range c.nodes {
		s := NodeSummary{Name: n.name, Enabled: n.enabled, Executors: make([]ExecutorSummary, 0)}
		for _, e := range n.executors {
			es := ExecutorSummary{Index: e.index}
			if e.item != nil {
				id, started := e.item.ID, e.startedAt
				es.Item, es.Task, es.StartedAt = &id, e.item.Task.DisplayName(), &started
				s.Busy++
			}
			s.Executors = append(s.Executors, es)
		}
		result = append(result, s)
	}
	return result
}

// Summary returns the state of one node.
func (c *Cluster) Summary(name string) (NodeSummary, bool) {
	for _, s := range c.Summaries() {
		if s.Name == name {
			return s, true
		}
	}
	return NodeSummary{}, false
}
