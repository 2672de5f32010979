package config

import (
	"encoding/json"
	"fmt"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/pkg/errors"

	"github.com/determined-ai/devicegate/internal/admission"
	"github.com/determined-ai/devicegate/pkg/check"
	"github.com/determined-ai/devicegate/pkg/device"
	"github.com/determined-ai/devicegate/pkg/logger"
	"github.com/determined-ai/devicegate/pkg/macro"
	"github.com/determined-ai/devicegate/pkg/model"
)

const (
	defaultPort                = 8080
	defaultMaintenanceInterval = 5 * time.Second

	clusterNameGeneratorWords = 2
	clusterNameGeneratorSep   = "-"
)

// DefaultConfig returns the default configuration of the master.
func DefaultConfig() *Config {
	return &Config{
		ConfigFile:          "",
		Log:                 *logger.DefaultConfig(),
		Port:                defaultPort,
		ClusterName:         "",
		MaintenanceInterval: Duration(defaultMaintenanceInterval),
		Admission: AdmissionConfig{
			MessageTemplate: admission.DefaultMessageTemplate,
		},
	}
}

// Config is the configuration of the master.
//
// It is populated, in the following order, by the master configuration file,
// environment variables and command line arguments.
type Config struct {
	ConfigFile          string          `json:"config_file"`
	Log                 logger.Config   `json:"log"`
	Port                int             `json:"port"`
	ClusterName         string          `json:"cluster_name"`
	MaintenanceInterval Duration        `json:"maintenance_interval"`
	Admission           AdmissionConfig `json:"admission"`
	Devices             []device.Device `json:"devices"`
	Nodes               []NodeConfig    `json:"nodes"`
	Jobs                []JobConfig     `json:"jobs"`
}

// AdmissionConfig configures the device admission gate.
type AdmissionConfig struct {
	// MessageTemplate is a Go template, with sprig functions, for the reason shown on
	// blocked items. It sees .Device and .DeviceName.
	MessageTemplate string `json:"message_template"`
}

// Validate implements the check.Validatable interface.
func (a AdmissionConfig) Validate() []error {
	if _, err := admission.NewMessages(a.MessageTemplate, nil); err != nil {
		return []error{err}
	}
	return nil
}

// NodeConfig configures a compute node and its executor slots.
type NodeConfig struct {
	Name      string `json:"name"`
	Executors int    `json:"executors"`
	Enabled   *bool  `json:"enabled"`
}

// Validate implements the check.Validatable interface.
func (n NodeConfig) Validate() []error {
	return []error{
		check.NotEmpty(n.Name, "node name is required"),
		check.GreaterThanOrEqualTo(n.Executors, 1, "node %q needs at least one executor", n.Name),
	}
}

// IsEnabled returns whether the node accepts work at startup. Nodes are enabled by default.
func (n NodeConfig) IsEnabled() bool {
	return n.Enabled == nil || *n.Enabled
}

// Printable returns a printable string.
func (c Config) Printable() ([]byte, error) {
	optJSON, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "unable to convert config to JSON")
	}
	return optJSON, nil
}

// Resolve resolves the values in the configuration.
func (c *Config) Resolve() error {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.MaintenanceInterval == 0 {
		c.MaintenanceInterval = Duration(defaultMaintenanceInterval)
	}
	if c.ClusterName == "" {
		c.ClusterName = petname.Generate(clusterNameGeneratorWords, clusterNameGeneratorSep)
	}
	for i := range c.Nodes {
		if c.Nodes[i].Executors == 0 {
			c.Nodes[i].Executors = 1
		}
	}
	for i := range c.Devices {
		if c.Devices[i].Platform == "" {
			c.Devices[i].Platform = device.IOS
		}
	}
	return nil
}

// Validate implements the check.Validatable interface.
func (c Config) Validate() []error {
	errs := []error{
		check.True(c.Port > 0 && c.Port < 65536, "port %d is out of range", c.Port),
		check.True(c.MaintenanceInterval > 0, "maintenance_interval must be positive"),
	}

	udids := make(map[device.UDID]bool)
	for _, d := range c.Devices {
		errs = append(errs,
			check.NotEmpty(string(d.UDID), "device udid is required"),
			check.True(!udids[d.UDID], "duplicate device %q", d.UDID),
		)
		udids[d.UDID] = true
	}

	nodes := make(map[string]bool)
	for _, n := range c.Nodes {
		errs = append(errs, check.True(!nodes[n.Name], "duplicate node %q", n.Name))
		nodes[n.Name] = true
	}

	jobs := make(map[string]bool)
	for _, j := range c.Jobs {
		errs = append(errs, check.True(!jobs[j.Name], "duplicate job %q", j.Name))
		jobs[j.Name] = true
	}
	return errs
}

// Warnings describe configuration that is accepted but probably wrong. Such jobs are not
// rejected: a job whose device cannot be resolved runs without a device constraint.
func (c Config) Warnings() []error {
	registry := device.NewRegistry(c.Devices)
	var warnings []error
	for _, j := range c.Jobs {
		steps := j.modelSteps()
		deploys := 0
		for _, s := range steps {
			if s.StepType() == model.DeployStepType {
				deploys++
			}
		}
		if deploys > 1 {
			warnings = append(warnings, fmt.Errorf(
				"job %q has %d deploy steps; only the first one is used for admission", j.Name, deploys))
		}

		deploy, ok := steps.Deploy()
		if !ok {
			continue
		}
		switch {
		case j.Matrix != nil:
			warnings = append(warnings, matrixTemplateWarnings(j, deploy)...)
		case len(registry) > 0:
			if _, ok := registry[device.UDID(deploy.UDID)]; !ok {
				warnings = append(warnings, fmt.Errorf(
					"job %q deploys to unregistered device %q", j.Name, deploy.UDID))
			}
		}
	}
	return warnings
}

func matrixTemplateWarnings(j JobConfig, deploy model.DeployStep) []error {
	tmpl, err := macro.Parse(deploy.UDID)
	if err != nil {
		return []error{errors.Wrapf(err, "job %q: device of every cell is unconstrained", j.Name)}
	}
	for _, combination := range model.Combinations(j.Matrix.Axes) {
		if _, err := tmpl.Execute(combination); err != nil {
			return []error{errors.Wrapf(err, "job %q: device of cell %s is unconstrained",
				j.Name, combination)}
		}
	}
	return nil
}
