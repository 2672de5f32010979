package main

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/determined-ai/devicegate/internal/config"
	"github.com/determined-ai/devicegate/version"
)

var v *viper.Viper

// viperKeyDelimiter marks nested values in the configuration. With "." viper could not
// tell a key containing a dot from a nested object, so ".." is used instead.
const viperKeyDelimiter = ".."

//nolint:gochecknoinit
func init() {
	// Link-time variable assignments are not applied when package-scoped variables are
	// initialized, so the version is set here.
	rootCmd.Version = version.Version
	registerConfig()
	rootCmd.AddCommand(checkConfigCmd)
}

type configKey []string

func (c configKey) EnvName() string {
	return "DEVICEGATE_" + strings.ReplaceAll(strings.ToUpper(c.FlagName()), "-", "_")
}

func (c configKey) AccessPath() string {
	return strings.ReplaceAll(strings.Join(c, viperKeyDelimiter), "-", "_")
}

func (c configKey) FlagName() string {
	return strings.Join(c, "-")
}

func registerString(flags *pflag.FlagSet, name configKey, value string, usage string) {
	flags.String(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerBool(flags *pflag.FlagSet, name configKey, value bool, usage string) {
	flags.Bool(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerInt(flags *pflag.FlagSet, name configKey, value int, usage string) {
	flags.Int(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerConfig() {
	v = viper.NewWithOptions(viper.KeyDelimiter(viperKeyDelimiter))
	v.SetTypeByDefaultValue(true)

	defaults := config.DefaultConfig()

	// Persistent so that check-config reads the same configuration.
	flags := rootCmd.PersistentFlags()
	name := func(components ...string) configKey { return components }

	registerString(flags, name("config-file"),
		defaults.ConfigFile, "location of config file")

	registerString(flags, name("log", "level"),
		defaults.Log.Level, "choose logging level from [trace, debug, info, warn, error, fatal]")
	registerBool(flags, name("log", "color"),
		defaults.Log.Color, "output logs in color")
	registerBool(flags, name("log", "json"),
		defaults.Log.JSON, "output logs as JSON")

	registerInt(flags, name("port"),
		defaults.Port, "server port")
	registerString(flags, name("cluster-name"),
		defaults.ClusterName, "name shown by /info")
	registerString(flags, name("maintenance-interval"),
		time.Duration(defaults.MaintenanceInterval).String(), "how often the queue is maintained")
	registerString(flags, name("admission", "message-template"),
		defaults.Admission.MessageTemplate, "template of the reason shown on items waiting for a device")
}
