// Package resolver determines which physical device, if any, a task deploys to.
package resolver

import (
	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"github.com/determined-ai/devicegate/pkg/device"
	"github.com/determined-ai/devicegate/pkg/macro"
	"github.com/determined-ai/devicegate/pkg/model"
)

// templateCacheSize bounds the number of parsed device templates kept around.
const templateCacheSize = 1024

// resolveFunc resolves one task kind. It is only called with tasks of that kind.
type resolveFunc func(r *Resolver, task model.Task) (device.UDID, bool)

// Resolver maps tasks to the UDID of the device they deploy to. Resolution is a pure
// function of the task's configuration; only parsed templates are cached.
type Resolver struct {
	byKind    map[model.TaskKind]resolveFunc
	templates *lru.Cache[string, *macro.Template]
}

// New returns a Resolver.
func New() *Resolver {
	templates, err := lru.New[string, *macro.Template](templateCacheSize)
	if err != nil {
		panic(err)
	}
	return &Resolver{
		byKind: map[model.TaskKind]resolveFunc{
			model.StandaloneKind: resolveStandalone,
			model.MatrixCellKind: resolveMatrixCell,
		},
		templates: templates,
	}
}

// Resolve returns the UDID the task deploys to. The second result is false if the task
// has no device constraint, including tasks of unrecognized kinds and matrix cells
// whose device template cannot be expanded.
func (r *Resolver) Resolve(task model.Task) (device.UDID, bool) {
	if task == nil {
		return device.None, false
	}
	resolve, ok := r.byKind[task.Kind()]
	if !ok {
		return device.None, false
	}
	udid, ok := resolve(r, task)
	if !ok || udid == device.None {
		return device.None, false
	}
	return udid, true
}

func resolveStandalone(_ *Resolver, task model.Task) (device.UDID, bool) {
	t, ok := task.(*model.StandaloneTask)
	if !ok || t == nil {
		return device.None, false
	}
	deploy, ok := t.Steps.Deploy()
	if !ok {
		return device.None, false
	}
	return device.UDID(deploy.UDID), true
}

func resolveMatrixCell(r *Resolver, task model.Task) (device.UDID, bool) {
	cell, ok := task.(*model.MatrixCell)
	if !ok || cell == nil {
		return device.None, false
	}
	// Cells have no steps of their own; the deploy step lives on the parent.
	deploy, ok := cell.Steps().Deploy()
	if !ok {
		return device.None, false
	}

	tmpl, err := r.template(deploy.UDID)
	if err == nil {
		var udid string
		if udid, err = tmpl.Execute(cell.Combination); err == nil {
			return device.UDID(udid), true
		}
	}

	resolveFailures.Inc()
	log.WithError(err).WithField("task", cell.DisplayName()).
		Debug("cannot resolve device template, treating task as unconstrained")
	return device.None, false
}

func (r *Resolver) template(s string) (*macro.Template, error) {
	if tmpl, ok := r.templates.Get(s); ok {
		return tmpl, nil
	}
	tmpl, err := macro.Parse(s)
	if err != nil {
		return nil, err
	}
	r.templates.Add(s, tmpl)
	return tmpl, nil
}
