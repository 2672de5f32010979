package project

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/determined-ai/devicegate/internal/config"
	"github.com/determined-ai/devicegate/internal/queue"
	"github.com/determined-ai/devicegate/internal/resolver"
	"github.com/determined-ai/devicegate/pkg/device"
	"github.com/determined-ai/devicegate/pkg/model"
)

func jobs() []config.JobConfig {
	return []config.JobConfig{
		{
			Freestyle:         &config.FreestyleJobConfig{},
			Name:              "app",
			Steps:             []config.StepConfig{{Deploy: &model.DeployStep{UDID: "D1"}}},
			SimulatedDuration: config.Duration(time.Minute),
		},
		{
			Matrix: &config.MatrixJobConfig{Axes: []model.Axis{
				{Name: "region", Values: []string{"us", "eu"}},
			}},
			Name:              "ui",
			Steps:             []config.StepConfig{{Deploy: &model.DeployStep{UDID: "D-${region}"}}},
			SimulatedDuration: config.Duration(time.Second),
		},
		{
			Freestyle: &config.FreestyleJobConfig{},
			Name:      "lint",
			Steps:     []config.StepConfig{{Shell: &model.ShellStep{Command: "swiftlint"}}},
		},
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(jobs())

	list := r.List()
	require.Len(t, list, 3)
	require.Equal(t, "app", list[0].Task.DisplayName())
	require.Equal(t, "lint", list[1].Task.DisplayName())

	_, err := r.Get("missing")
	require.ErrorIs(t, err, ErrJobNotFound)

	ui, err := r.Get("ui")
	require.NoError(t, err)
	require.Len(t, ui.Runnable(), 2)
	for _, task := range ui.Runnable() {
		require.Equal(t, time.Second, r.Duration(task))
	}
}

func TestSubmit(t *testing.T) {
	r := NewRegistry(jobs())
	q := queue.New(clockwork.NewFakeClock())

	items, err := r.Submit(q, "ui")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, model.MatrixCellKind, items[0].Task.Kind())

	items, err = r.Submit(q, "app")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 3, q.Len())

	_, err = r.Submit(q, "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestDevices(t *testing.T) {
	r := NewRegistry(jobs())
	res := resolver.New()

	ui, _ := r.Get("ui")
	require.Equal(t, []TaskDevice{
		{Task: "ui/region=us", Device: "D-us"},
		{Task: "ui/region=eu", Device: "D-eu"},
	}, ui.Devices(res))

	lint, _ := r.Get("lint")
	require.Equal(t, []TaskDevice{{Task: "lint", Device: device.None}}, lint.Devices(res))
}
