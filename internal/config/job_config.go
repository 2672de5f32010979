package config

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/determined-ai/devicegate/pkg/check"
	"github.com/determined-ai/devicegate/pkg/model"
	"github.com/determined-ai/devicegate/pkg/union"
)

const (
	// FreestyleJobType is a single standalone job.
	FreestyleJobType = "freestyle"
	// MatrixJobType is a job expanded into one cell per axis combination.
	MatrixJobType = "matrix"
)

// JobConfig configures one job.
type JobConfig struct {
	Freestyle *FreestyleJobConfig `union:"type,freestyle" json:"-"`
	Matrix    *MatrixJobConfig    `union:"type,matrix" json:"-"`

	Name  string       `json:"name"`
	Steps []StepConfig `json:"steps"`
	// SimulatedDuration is how long the simulated launcher holds an executor.
	SimulatedDuration Duration `json:"simulated_duration"`
}

// FreestyleJobConfig holds the options specific to freestyle jobs.
type FreestyleJobConfig struct{}

// MatrixJobConfig holds the options specific to matrix jobs.
type MatrixJobConfig struct {
	Axes []model.Axis `json:"axes"`
}

// MarshalJSON implements the json.Marshaler interface.
func (j JobConfig) MarshalJSON() ([]byte, error) {
	return union.Marshal(j)
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (j *JobConfig) UnmarshalJSON(data []byte) error {
	if err := union.Unmarshal(data, j); err != nil {
		return err
	}

	type DefaultParser *JobConfig
	if err := json.Unmarshal(data, DefaultParser(j)); err != nil {
		return err
	}

	if j.Freestyle == nil && j.Matrix == nil {
		j.Freestyle = &FreestyleJobConfig{}
	}
	return nil
}

// GetType returns the configured job type.
func (j JobConfig) GetType() string {
	if j.Matrix != nil {
		return MatrixJobType
	}
	return FreestyleJobType
}

// Validate implements the check.Validatable interface.
func (j JobConfig) Validate() []error {
	errs := []error{
		check.NotEmpty(j.Name, "job name is required"),
		check.GreaterThanOrEqualTo(int(j.SimulatedDuration), 0,
			"simulated_duration of job %q must not be negative", j.Name),
	}
	if j.Matrix != nil {
		errs = append(errs, j.Matrix.validate(j.Name)...)
	}
	if deploy, ok := j.modelSteps().Deploy(); ok && j.Freestyle != nil {
		errs = append(errs, check.NotEmpty(deploy.UDID, "deploy step of job %q has no udid", j.Name))
	}
	return errs
}

func (m MatrixJobConfig) validate(job string) []error {
	errs := []error{check.True(len(m.Axes) > 0, "matrix job %q needs at least one axis", job)}
	seen := make(map[string]bool)
	for _, axis := range m.Axes {
		errs = append(errs,
			check.NotEmpty(axis.Name, "axis of matrix job %q has no name", job),
			check.True(!seen[axis.Name], "duplicate axis %q in matrix job %q", axis.Name, job),
			check.True(len(axis.Values) > 0, "axis %q of matrix job %q has no values", axis.Name, job),
		)
		seen[axis.Name] = true
	}
	return errs
}

// Task returns the model for the job: a *model.StandaloneTask or a *model.MatrixProject.
func (j JobConfig) Task() model.Task {
	if j.Matrix != nil {
		return model.NewMatrixProject(j.Name, j.Matrix.Axes, j.modelSteps())
	}
	return &model.StandaloneTask{Name: j.Name, Steps: j.modelSteps()}
}

func (j JobConfig) modelSteps() model.Steps {
	steps := make(model.Steps, 0, len(j.Steps))
	for _, s := range j.Steps {
		if step := s.Step(); step != nil {
			steps = append(steps, step)
		}
	}
	return steps
}

// StepConfig configures one build step.
type StepConfig struct {
	Deploy *model.DeployStep `union:"type,deploy" json:"-"`
	Shell  *model.ShellStep  `union:"type,shell" json:"-"`
}

// MarshalJSON implements the json.Marshaler interface.
func (s StepConfig) MarshalJSON() ([]byte, error) {
	return union.Marshal(s)
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (s *StepConfig) UnmarshalJSON(data []byte) error {
	return union.Unmarshal(data, s)
}

// Validate implements the check.Validatable interface.
func (s StepConfig) Validate() []error {
	if s.Deploy == nil && s.Shell == nil {
		return []error{errors.New("step type is required: one of deploy, shell")}
	}
	return nil
}

// Step returns the model for the step, or nil if no type is set.
func (s StepConfig) Step() model.Step {
	switch {
	case s.Deploy != nil:
		return *s.Deploy
	case s.Shell != nil:
		return *s.Shell
	default:
		return nil
	}
}

func (s StepConfig) String() string {
	if step := s.Step(); step != nil {
		return fmt.Sprintf("%s step", step.StepType())
	}
	return "untyped step"
}
