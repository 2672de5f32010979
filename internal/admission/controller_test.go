package admission

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/determined-ai/devicegate/internal/resolver"
	"github.com/determined-ai/devicegate/internal/sproto"
	"github.com/determined-ai/devicegate/pkg/device"
	"github.com/determined-ai/devicegate/pkg/model"
)

type mockLister struct {
	items []*sproto.Item
	err   error
	panic bool
}

func (m *mockLister) PendingItems() ([]*sproto.Item, error) { return m.list() }
func (m *mockLister) RunningItems() ([]*sproto.Item, error) { return m.list() }

func (m *mockLister) list() ([]*sproto.Item, error) {
	if m.panic {
		panic("registry is gone")
	}
	return m.items, m.err
}

func (m *mockLister) remove(item *sproto.Item) {
	for i, it := range m.items {
		if it == item {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return
		}
	}
}

func standalone(name, udid string) *model.StandaloneTask {
	steps := model.Steps{model.ShellStep{Command: "xcodebuild"}}
	if udid != "" {
		steps = append(steps, model.DeployStep{UDID: udid})
	}
	return &model.StandaloneTask{Name: name, Steps: steps}
}

func newItem(task model.Task) *sproto.Item {
	return sproto.NewItem(task, time.Now())
}

func setup() (*Controller, *mockLister, *mockLister) {
	pending, running := &mockLister{}, &mockLister{}
	return New(resolver.New(), pending, running, nil), pending, running
}

func TestUnconstrainedAlwaysAdmitted(t *testing.T) {
	c, pending, running := setup()
	jobA, jobB := newItem(standalone("a", "D1")), newItem(standalone("b", "D1"))
	running.items = []*sproto.Item{jobA}
	pending.items = []*sproto.Item{jobB}

	jobC := newItem(standalone("c", ""))
	require.Nil(t, c.CanRun(jobC))
	require.Nil(t, c.CanRun(nil))
}

func TestRunningConflictBlocksUntilRemoved(t *testing.T) {
	c, _, running := setup()
	jobA, jobB := newItem(standalone("a", "D1")), newItem(standalone("b", "D1"))
	running.items = []*sproto.Item{jobA}

	cause := c.CanRun(jobB)
	require.NotNil(t, cause)
	require.Equal(t, device.UDID("D1"), cause.Device)
	require.Contains(t, cause.Message, "D1")

	running.remove(jobA)
	require.Nil(t, c.CanRun(jobB))
}

func TestPendingConflictExcludesSelf(t *testing.T) {
	c, pending, _ := setup()
	p, candidate := newItem(standalone("p", "K")), newItem(standalone("c", "K"))
	pending.items = []*sproto.Item{p}

	require.NotNil(t, c.CanRun(candidate))

	// The candidate showing up in the pending snapshot never blocks itself.
	pending.items = []*sproto.Item{candidate}
	require.Nil(t, c.CanRun(candidate))

	pending.items = []*sproto.Item{candidate, p}
	require.NotNil(t, c.CanRun(candidate))
}

func TestSameTaskDistinctItemsConflict(t *testing.T) {
	c, pending, _ := setup()
	task := standalone("a", "D1")
	first, second := newItem(task), newItem(task)
	pending.items = []*sproto.Item{first}
	require.NotNil(t, c.CanRun(second), "items are compared by identity, not configuration")
}

func TestMatrixCellsWithDistinctDevices(t *testing.T) {
	c, _, running := setup()
	m := model.NewMatrixProject("m",
		[]model.Axis{{Name: "region", Values: []string{"us", "eu"}}},
		model.Steps{model.DeployStep{UDID: "D${region}"}},
	)
	us, eu := newItem(m.Cells()[0]), newItem(m.Cells()[1])

	require.Nil(t, c.CanRun(us))
	running.items = []*sproto.Item{us}
	require.Nil(t, c.CanRun(eu))
	running.items = []*sproto.Item{us, eu}
	require.Nil(t, c.CanRun(newItem(standalone("other", "Dother"))))
}

func TestMatrixCellsWithSameDevice(t *testing.T) {
	c, pending, running := setup()
	m := model.NewMatrixProject("m",
		[]model.Axis{
			{Name: "region", Values: []string{"us", "eu"}},
			{Name: "phone", Values: []string{"P1"}},
		},
		model.Steps{model.DeployStep{UDID: "${phone}"}},
	)
	us, eu := newItem(m.Cells()[0]), newItem(m.Cells()[1])

	pending.items = []*sproto.Item{us}
	cause := c.CanRun(eu)
	require.NotNil(t, cause)
	require.Equal(t, device.UDID("P1"), cause.Device)

	pending.items = nil
	running.items = []*sproto.Item{us}
	require.NotNil(t, c.CanRun(eu))

	// A standalone job deploying to the same device conflicts with the cells too.
	require.NotNil(t, c.CanRun(newItem(standalone("s", "P1"))))
}

func TestMalformedTemplateDoesNotStallOthers(t *testing.T) {
	c, _, running := setup()
	bad := model.NewMatrixProject("bad",
		[]model.Axis{{Name: "region", Values: []string{"us"}}},
		model.Steps{model.DeployStep{UDID: "${region"}},
	)
	badItem := newItem(bad.Cells()[0])
	holder := newItem(standalone("a", "D1"))
	running.items = []*sproto.Item{badItem, holder}

	require.Nil(t, c.CanRun(badItem))
	require.NotNil(t, c.CanRun(newItem(standalone("b", "D1"))))
}

func TestCollaboratorUnavailableFailsOpen(t *testing.T) {
	holder, candidate := newItem(standalone("a", "D1")), newItem(standalone("b", "D1"))

	pending := &mockLister{items: []*sproto.Item{holder}, err: errors.New("queue not ready")}
	running := &mockLister{panic: true}
	c := New(resolver.New(), pending, running, nil)
	require.Nil(t, c.CanRun(candidate))

	c = New(resolver.New(), nil, nil, nil)
	require.Nil(t, c.CanRun(candidate))

	// One unavailable collaborator does not hide a conflict in the other.
	c = New(resolver.New(), pending, &mockLister{items: []*sproto.Item{holder}}, nil)
	require.NotNil(t, c.CanRun(candidate))
}

func TestDecisionMetrics(t *testing.T) {
	c, _, running := setup()
	blocked := testutil.ToFloat64(decisions.WithLabelValues(resultBlocked))
	admitted := testutil.ToFloat64(decisions.WithLabelValues(resultAdmitted))
	unconstrained := testutil.ToFloat64(decisions.WithLabelValues(resultUnconstrained))

	running.items = []*sproto.Item{newItem(standalone("a", "D1"))}
	c.CanRun(newItem(standalone("b", "D1")))
	c.CanRun(newItem(standalone("c", "D2")))
	c.CanRun(newItem(standalone("d", "")))

	require.Equal(t, blocked+1, testutil.ToFloat64(decisions.WithLabelValues(resultBlocked)))
	require.Equal(t, admitted+1, testutil.ToFloat64(decisions.WithLabelValues(resultAdmitted)))
	require.Equal(t, unconstrained+1,
		testutil.ToFloat64(decisions.WithLabelValues(resultUnconstrained)))
}
