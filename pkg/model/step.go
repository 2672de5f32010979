package model

// StepType is the discriminator of a configured build step.
type StepType string

const (
	// DeployStepType deploys the build output to a physical device.
	DeployStepType StepType = "deploy"
	// ShellStepType runs a shell command on the executor.
	ShellStepType StepType = "shell"
)

// Step is one configured build step of a task.
type Step interface {
	StepType() StepType
}

// DeployStep designates the device a task deploys to. For matrix jobs UDID may be a
// template referencing axis names, e.g. "${device}".
type DeployStep struct {
	UDID string `json:"udid"`
}

// StepType implements Step.
func (DeployStep) StepType() StepType { return DeployStepType }

// ShellStep runs Command. It does not take part in admission decisions.
type ShellStep struct {
	Command string `json:"command"`
}

// StepType implements Step.
func (ShellStep) StepType() StepType { return ShellStepType }

// Steps is an ordered list of build steps.
type Steps []Step

// First returns the first step of the given type, in step order.
func (s Steps) First(t StepType) (Step, bool) {
	for _, step := range s {
		if step != nil && step.StepType() == t {
			return step, true
		}
	}
	return nil, false
}

// Deploy returns the effective deploy step, if any.
func (s Steps) Deploy() (DeployStep, bool) {
	step, ok := s.First(DeployStepType)
	if !ok {
		return DeployStep{}, false
	}
	switch d := step.(type) {
	case DeployStep:
		return d, true
	case *DeployStep:
		if d == nil {
			return DeployStep{}, false
		}
		return *d, true
	default:
		return DeployStep{}, false
	}
}
