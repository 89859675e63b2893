// Package config loads hwcert settings from the config file, HWCERT_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_err"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/shared"
)

const DefaultWorkdir = "/var/lib/hwcert"

type Config struct {
	Workdir     string `mapstructure:"workdir" validate:"required"`
	ReportPath  string `mapstructure:"report_path" validate:"required"`
	SummaryPath string `mapstructure:"summary_path" validate:"required"`
	StatePath   string `mapstructure:"state_path" validate:"required"`

	RebootTimeLimit time.Duration `mapstructure:"reboot_time_limit" validate:"gt=0"`
	MaxReboots      int           `mapstructure:"max_reboots" validate:"gte=1"`

	StaticLogPath string `mapstructure:"static_log_path"`
	LogMarker     string `mapstructure:"log_marker" validate:"required"`
	BootMarker    string `mapstructure:"boot_marker" validate:"required"`
	KernelTag     string `mapstructure:"kernel_tag" validate:"required"`

	ServiceName    string `mapstructure:"service_name" validate:"required,excludesall=/"`
	UnitDir        string `mapstructure:"unit_dir" validate:"required"`
	PackageManager string `mapstructure:"package_manager" validate:"required"`
	SysfsRoot      string `mapstructure:"sysfs_root" validate:"required"`

	ShutdownWait  time.Duration `mapstructure:"shutdown_wait" validate:"gt=0"`
	RebootCommand string        `mapstructure:"reboot_command" validate:"required"`

	Lull       LullConfig   `mapstructure:"lull"`
	MarkerWait WaitConfig   `mapstructure:"marker_wait"`
	Memory     MemoryConfig `mapstructure:"memory"`

	// File is the absolute path of the config file that was read, if any.
	File string `mapstructure:"-"`
}

// LullConfig bounds the wait for the system to go quiet before a reboot.
type LullConfig struct {
	Interval      time.Duration `mapstructure:"interval" validate:"gt=0"`
	Attempts      int           `mapstructure:"attempts" validate:"gte=1"`
	LoadThreshold float64       `mapstructure:"load_threshold" validate:"gt=0"`
}

type WaitConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
	Attempts int           `mapstructure:"attempts" validate:"gte=1"`
}

type MemoryConfig struct {
	Command string `mapstructure:"command" validate:"required"`
}

// SetDefaults registers every known key, which also makes each one
// resolvable from the environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workdir", DefaultWorkdir)
	v.SetDefault("report_path", shared.DefaultReportPath)
	v.SetDefault("summary_path", shared.DefaultSummaryPath)
	v.SetDefault("state_path", shared.DefaultStatePath)
	v.SetDefault("reboot_time_limit", 60*time.Minute)
	v.SetDefault("max_reboots", 1)
	v.SetDefault("static_log_path", shared.DefaultStaticLogPath)
	v.SetDefault("log_marker", shared.DefaultLogMarker)
	v.SetDefault("boot_marker", shared.DefaultBootMarker)
	v.SetDefault("kernel_tag", shared.DefaultKernelTag)
	v.SetDefault("service_name", shared.HwcertID)
	v.SetDefault("unit_dir", shared.DefaultUnitDir)
	v.SetDefault("package_manager", shared.DefaultPackageManager)
	v.SetDefault("sysfs_root", "/sys")
	v.SetDefault("shutdown_wait", 60*time.Second)
	v.SetDefault("reboot_command", "shutdown -r 0")
	v.SetDefault("lull.interval", 5*time.Second)
	v.SetDefault("lull.attempts", 20)
	v.SetDefault("lull.load_threshold", 1.0)
	v.SetDefault("marker_wait.interval", time.Second)
	v.SetDefault("marker_wait.attempts", 30)
	v.SetDefault("memory.command", "stress-ng --vm 1 --vm-bytes {size}M --timeout 60s")
}

// BindFlags binds every flag to the key of the same name with dashes
// turned into underscores, so --report-path sets report_path.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var result error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			result = multierror.Append(result, cerr.Wrapf(err, "bind flag --%s", f.Name))
		}
	})
	return result
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(shared.HwcertEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (or the system config file when path is empty and it
// exists), overlays flags, and validates the result. Relative report and
// summary paths are resolved against the workdir.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := New()

	if flags != nil {
		if err := BindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	switch {
	case path != "":
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, cerr.Wrapf(err, "read config %s", path)
		}
	default:
		if _, err := os.Stat(shared.HwcertConfigFile); err == nil {
			v.SetConfigFile(shared.HwcertConfigFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, cerr.Wrapf(err, "read config %s", shared.HwcertConfigFile)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, cerr.Wrap(err, "decode config")
	}
	cfg.resolve()
	if used := v.ConfigFileUsed(); used != "" {
		abs, err := filepath.Abs(used)
		if err != nil {
			return nil, cerr.Wrapf(err, "resolve config path %s", used)
		}
		cfg.File = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EnvOverrides returns the HWCERT_* variables of the current process as
// KEY=VALUE pairs, sorted.
func EnvOverrides() []string {
	var out []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, shared.HwcertEnvPrefix+"_") {
			out = append(out, kv)
		}
	}
	sort.Strings(out)
	return out
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	var c Config
	_ = New().Unmarshal(&c)
	c.resolve()
	return &c
}

func (c *Config) resolve() {
	if c.Workdir == "" {
		return
	}
	if c.ReportPath != "" && !filepath.IsAbs(c.ReportPath) {
		c.ReportPath = filepath.Join(c.Workdir, c.ReportPath)
	}
	if c.SummaryPath != "" && !filepath.IsAbs(c.SummaryPath) {
		c.SummaryPath = filepath.Join(c.Workdir, c.SummaryPath)
	}
}

// Validate checks struct tags and reports every failing field at once.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !cerr.As(err, &verrs) {
		return cerr.Wrap(err, "validate config")
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
	}
	return hwcert_err.NewValidationError(
		"invalid configuration: "+strings.Join(fields, ", "),
		"check "+shared.HwcertConfigFile+" and HWCERT_* environment variables",
	)
}
