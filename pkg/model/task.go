package model

import "fmt"

// TaskKind discriminates the closed set of task shapes.
type TaskKind string

const (
	// StandaloneKind is a single configured job.
	StandaloneKind TaskKind = "freestyle"
	// MatrixKind is a parameterized job definition. It is expanded into cells and never
	// queued itself.
	MatrixKind TaskKind = "matrix"
	// MatrixCellKind is one combination of a matrix job.
	MatrixCellKind TaskKind = "matrix-cell"
)

// Task is a job definition that can be queued.
type Task interface {
	Kind() TaskKind
	// DisplayName is unique across the tasks of one cluster.
	DisplayName() string
}

// StandaloneTask is a single configured job with its own step list.
type StandaloneTask struct {
	Name  string
	Steps Steps
}

// Kind implements Task.
func (t *StandaloneTask) Kind() TaskKind { return StandaloneKind }

// DisplayName implements Task.
func (t *StandaloneTask) DisplayName() string { return t.Name }

// MatrixProject is the parent definition of a matrix job.
type MatrixProject struct {
	Name  string
	Axes  []Axis
	Steps Steps

	cells []*MatrixCell
}

// Kind implements Task.
func (p *MatrixProject) Kind() TaskKind { return MatrixKind }

// DisplayName implements Task.
func (p *MatrixProject) DisplayName() string { return p.Name }

// NewMatrixProject returns a matrix project with one cell per axis combination.
func NewMatrixProject(name string, axes []Axis, steps Steps) *MatrixProject {
	p := &MatrixProject{Name: name, Axes: axes, Steps: steps}
	for _, c := range Combinations(axes) {
		p.cells = append(p.cells, &MatrixCell{Parent: p, Combination: c})
	}
	return p
}

// Cells returns the cells created by NewMatrixProject. The same combination always maps to
// the same *MatrixCell.
func (p *MatrixProject) Cells() []*MatrixCell {
	return p.cells
}

// MatrixCell is one parameterized instantiation of a matrix job. It shares its parent's
// step configuration.
type MatrixCell struct {
	Parent      *MatrixProject
	Combination Combination
}

// Kind implements Task.
func (c *MatrixCell) Kind() TaskKind { return MatrixCellKind }

// DisplayName implements Task.
func (c *MatrixCell) DisplayName() string {
	if c.Parent == nil {
		return c.Combination.String()
	}
	return fmt.Sprintf("%s/%s", c.Parent.Name, c.Combination.String())
}

// Steps returns the parent's step list, or nil for a detached cell.
func (c *MatrixCell) Steps() Steps {
	if c.Parent == nil {
		return nil
	}
	return c.Parent.Steps
}

// StepsOf returns the effective step list of a task, or nil for unknown task shapes.
func StepsOf(task Task) Steps {
	switch t := task.(type) {
	case *StandaloneTask:
		return t.Steps
	case *MatrixCell:
		return t.Steps()
	case *MatrixProject:
		return t.Steps
	default:
		return nil
	}
}
