package config

import (
	"strings"
	"time"

	"github.com/Gthulhu/scx_netland/engine"
	"github.com/Gthulhu/scx_netland/predictor"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "SCX"

type SchedulerConfig struct {
	SliceUs     uint64 `mapstructure:"slice_us"`
	SliceUsMin  uint64 `mapstructure:"slice_us_min"`
	PerCPULocal bool   `mapstructure:"percpu_local"`
	Partial     bool   `mapstructure:"partial"`
	ExitDumpLen uint32 `mapstructure:"exit_dump_len"`
	BPFObject   string `mapstructure:"bpf_object"`
}

type CongestionConfig struct {
	Interface  string `mapstructure:"interface"`
	IntervalMs uint64 `mapstructure:"interval_ms"`
	Bias       uint32 `mapstructure:"bias"`
}

type StatsConfig struct {
	Addr string `mapstructure:"addr"`
	// Interval in seconds for the stats monitor running next to the scheduler; 0 disables it.
	Interval float64 `mapstructure:"interval"`
	// Monitor in seconds switches the process into monitor-only mode; 0 disables it.
	Monitor float64 `mapstructure:"monitor"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Verbose bool   `mapstructure:"verbose"`
}

type Config struct {
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Congestion CongestionConfig `mapstructure:"congestion"`
	Stats      StatsConfig      `mapstructure:"stats"`
	Predictor  predictor.Config `mapstructure:"predictor"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

var defaults = map[string]any{
	"scheduler.slice_us":      uint64(20000),
	"scheduler.slice_us_min":  uint64(1000),
	"scheduler.percpu_local":  false,
	"scheduler.partial":       false,
	"scheduler.exit_dump_len": uint32(0),
	"scheduler.bpf_object":    "main.bpf.o",
	"congestion.interface":    "enp153s0",
	"congestion.interval_ms":  uint64(500),
	"congestion.bias":         uint32(0),
	"stats.addr":              "127.0.0.1:9190",
	"stats.interval":          0.0,
	"stats.monitor":           0.0,
	"predictor.mode":          "",
	"predictor.weights":       "",
	"predictor.threshold":     float32(predictor.DefaultThreshold),
	"logging.level":           "info",
	"logging.verbose":         false,
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"slice-us":               "scheduler.slice_us",
	"slice-us-min":           "scheduler.slice_us_min",
	"percpu-local":           "scheduler.percpu_local",
	"partial":                "scheduler.partial",
	"exit-dump-len":          "scheduler.exit_dump_len",
	"bpf-object":             "scheduler.bpf_object",
	"interface":              "congestion.interface",
	"congestion-interval-ms": "congestion.interval_ms",
	"congestion-bias":        "congestion.bias",
	"stats-addr":             "stats.addr",
	"stats":                  "stats.interval",
	"monitor":                "stats.monitor",
	"predictor-mode":         "predictor.mode",
	"predictor-weights":      "predictor.weights",
	"predictor-threshold":    "predictor.threshold",
	"log-level":              "logging.level",
	"verbose":                "logging.verbose",
}

// RegisterFlags adds the scheduler flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Uint64P("slice-us", "s", 20000, "Scheduling slice duration in microseconds")
	fs.Uint64P("slice-us-min", "S", 1000, "Minimum scheduling slice duration in microseconds")
	fs.BoolP("percpu-local", "l", false, "Dispatch tasks bound to a single CPU directly to that CPU")
	fs.BoolP("partial", "p", false, "Only switch tasks with SCHED_EXT policy")
	fs.Uint32("exit-dump-len", 0, "Exit debug dump buffer length (0 = default)")
	fs.String("bpf-object", "main.bpf.o", "Path of the BPF object to load")
	fs.String("interface", "enp153s0", "Network interface watched for congestion")
	fs.Uint64("congestion-interval-ms", 500, "Congestion sampling interval in milliseconds")
	fs.Uint32("congestion-bias", 0, "Shrink slices by up to this percentage at full congestion (0-100)")
	fs.String("stats-addr", "127.0.0.1:9190", "Listen address of the stats endpoint")
	fs.Float64("stats", 0, "Log scheduler statistics every N seconds while scheduling")
	fs.Float64("monitor", 0, "Run in monitor mode: print statistics every N seconds, do not schedule")
	fs.String("predictor-mode", "", "Placement predictor to use (empty disables it)")
	fs.String("predictor-weights", "", "Weights file for the placement predictor")
	fs.Float32("predictor-threshold", predictor.DefaultThreshold, "Confidence needed to keep a task on its previous CPU")
	fs.String("log-level", "info", "Log level")
	fs.BoolP("verbose", "v", false, "Enable verbose output")
}

// Load reads configuration from defaults, an optional TOML file, SCX_ environment
// variables and the flags in fs, in increasing precedence. A missing file is not an error.
func Load(configName, configDir string, fs *pflag.FlagSet) (Config, error) {
	var cfg Config
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	if configName != "" {
		if configDir != "" {
			v.AddConfigPath(configDir)
		}
		v.AddConfigPath(".")
		v.SetConfigName(configName)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return cfg, errors.Wrap(err, "read config")
			}
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return cfg, errors.Wrapf(err, "bind flag %s", name)
				}
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Scheduler.SliceUs == 0:
		return errors.New("slice_us must be positive")
	case c.Scheduler.SliceUsMin == 0:
		return errors.New("slice_us_min must be positive")
	case c.Scheduler.SliceUsMin > c.Scheduler.SliceUs:
		return errors.Errorf("slice_us_min (%d) exceeds slice_us (%d)", c.Scheduler.SliceUsMin, c.Scheduler.SliceUs)
	case c.Congestion.IntervalMs == 0:
		return errors.New("congestion interval must be positive")
	case c.Congestion.Bias > 100:
		return errors.Errorf("congestion bias %d outside [0, 100]", c.Congestion.Bias)
	case c.Stats.Interval < 0 || c.Stats.Monitor < 0:
		return errors.New("stats intervals cannot be negative")
	case c.Predictor.Mode != "" && c.Predictor.WeightsPath == "":
		return errors.Errorf("predictor mode %q needs a weights file", c.Predictor.Mode)
	}
	return nil
}

func (c Config) EngineConfig() engine.Config {
	return engine.Config{
		SliceNsDefault: c.Scheduler.SliceUs * engine.NSEC_PER_USEC,
		SliceNsMin:     c.Scheduler.SliceUsMin * engine.NSEC_PER_USEC,
		PerCPULocal:    c.Scheduler.PerCPULocal,
		CongestionBias: c.Congestion.Bias,
	}
}

func (c Config) CongestionInterval() time.Duration {
	return time.Duration(c.Congestion.IntervalMs) * time.Millisecond
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (c Config) StatsInterval() time.Duration {
	return seconds(c.Stats.Interval)
}

func (c Config) MonitorInterval() time.Duration {
	return seconds(c.Stats.Monitor)
}

// LogLevel is the effective log level; verbose forces debug.
func (c Config) LogLevel() string {
	if c.Logging.Verbose {
		return "debug"
	}
	return c.Logging.Level
}
