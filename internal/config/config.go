package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/dutywatch/internal/logger"
	"github.com/loykin/dutywatch/internal/reason"
	"github.com/spf13/viper"
)

// Layout is the on-disk arrangement and tuning of a dutywatch deployment,
// read from dutywatch.toml. Relative paths resolve against Root.
type Layout struct {
	Root string `toml:"root" mapstructure:"root"`

	WorkerLog     string   `toml:"worker_log" mapstructure:"worker_log"`
	ExtraLogs     []string `toml:"extra_logs" mapstructure:"extra_logs"`
	LogCeiling    int64    `toml:"log_ceiling" mapstructure:"log_ceiling"` // bytes before single-generation rotation
	ReasonFile    string   `toml:"reason_file" mapstructure:"reason_file"`
	EventFile     string   `toml:"event_file" mapstructure:"event_file"`
	QueueFile     string   `toml:"queue_file" mapstructure:"queue_file"`
	WatermarkFile string   `toml:"watermark_file" mapstructure:"watermark_file"`
	OptionsFile   string   `toml:"options_file" mapstructure:"options_file"`
	RunDir        string   `toml:"run_dir" mapstructure:"run_dir"`

	PollInterval time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	StopTimeout  time.Duration `toml:"stop_timeout" mapstructure:"stop_timeout"`

	Worker    WorkerConfig    `toml:"worker" mapstructure:"worker"`
	Collector CollectorConfig `toml:"collector" mapstructure:"collector"`
	History   HistoryConfig   `toml:"history" mapstructure:"history"`
	API       APIConfig       `toml:"api" mapstructure:"api"`
	Log       logger.Config   `toml:"log" mapstructure:"log"`
}

type WorkerConfig struct {
	Exec         string   `toml:"exec" mapstructure:"exec"`
	Args         []string `toml:"args" mapstructure:"args"` // placed before the script path
	Glob         string   `toml:"glob" mapstructure:"glob"` // newest match is used when BOT_FILE is unset
	Default      string   `toml:"default" mapstructure:"default"`
	CommandsGlob string   `toml:"commands_glob" mapstructure:"commands_glob"`
	CoreScript   string   `toml:"core_script" mapstructure:"core_script"`
	ManualExit   int      `toml:"manual_exit" mapstructure:"manual_exit"`
}

type CollectorConfig struct {
	Enabled         bool          `toml:"enabled" mapstructure:"enabled"`
	Exec            string        `toml:"exec" mapstructure:"exec"` // empty runs this binary's collect command
	Args            []string      `toml:"args" mapstructure:"args"`
	Interval        time.Duration `toml:"interval" mapstructure:"interval"`
	TailLines       int           `toml:"tail_lines" mapstructure:"tail_lines"`
	TimestampLayout string        `toml:"timestamp_layout" mapstructure:"timestamp_layout"`
	StopTimeout     time.Duration `toml:"stop_timeout" mapstructure:"stop_timeout"`
	Log             string        `toml:"log" mapstructure:"log"`
	CriticalKeys    []string      `toml:"critical_keys" mapstructure:"critical_keys"`
	WarningKeys     []string      `toml:"warning_keys" mapstructure:"warning_keys"`
	IgnoreKeys      []string      `toml:"ignore_keys" mapstructure:"ignore_keys"`
	IgnorePrefixes  []string      `toml:"ignore_prefixes" mapstructure:"ignore_prefixes"`
	CrashReasons    []string      `toml:"crash_reasons" mapstructure:"crash_reasons"`
}

// HistoryConfig selects the optional restart-history sink by DSN
// (sqlite://, postgres://, clickhouse://, opensearch+http(s)://).
type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type APIConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("worker_log", "logs/bot.log")
	v.SetDefault("log_ceiling", 500_000)
	v.SetDefault("reason_file", "logs/restart_reason.txt")
	v.SetDefault("event_file", "events/watchdog_event.json")
	v.SetDefault("queue_file", "pending_dm.json")
	v.SetDefault("watermark_file", "collector_state.json")
	v.SetDefault("options_file", ".env")
	v.SetDefault("run_dir", "run")
	v.SetDefault("poll_interval", 5*time.Second)
	v.SetDefault("stop_timeout", 5*time.Second)

	v.SetDefault("worker.exec", "python3")
	v.SetDefault("worker.glob", "EMS_Duty_NAS_*.py")
	v.SetDefault("worker.default", "EMS_Duty_NAS.py")
	v.SetDefault("worker.commands_glob", "EMS_Duty_Moduls/commands/*.py")
	v.SetDefault("worker.core_script", "")
	v.SetDefault("worker.manual_exit", reason.ManualExitCode)

	v.SetDefault("collector.enabled", true)
	v.SetDefault("collector.interval", 60*time.Second)
	v.SetDefault("collector.tail_lines", 500)
	v.SetDefault("collector.timestamp_layout", "2006-01-02 15:04:05")
	v.SetDefault("collector.stop_timeout", 3*time.Second)
	v.SetDefault("collector.log", "logs/collector.log")

	v.SetDefault("history.dsn", "")
	v.SetDefault("api.listen", "")
	v.SetDefault("api.base_path", "/api")
	v.SetDefault("log.file", "logs/supervisor.log")
	v.SetDefault("log.stderr", true)
}

// DefaultLayout returns the layout used when no file is given, rooted at root.
func DefaultLayout(root string) Layout {
	v := viper.New()
	setDefaults(v)
	var l Layout
	_ = v.Unmarshal(&l)
	if root != "" {
		l.Root = root
	}
	l.resolve()
	return l
}

// LoadLayout reads a TOML layout file over the defaults. DUTYWATCH_* environment
// variables override file values (e.g. DUTYWATCH_ROOT, DUTYWATCH_API_LISTEN).
func LoadLayout(path string) (Layout, error) {
	return LoadLayoutAt(path, "")
}

// LoadLayoutAt is LoadLayout with an explicit root that wins over the file
// and the environment. An empty root keeps the usual resolution.
func LoadLayoutAt(path, root string) (Layout, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("dutywatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Layout{}, fmt.Errorf("read layout %s: %w", path, err)
		}
	}
	if root != "" {
		v.Set("root", root)
	}
	var l Layout
	if err := v.Unmarshal(&l); err != nil {
		return Layout{}, fmt.Errorf("decode layout: %w", err)
	}
	if path != "" && root == "" && !v.InConfig("root") && os.Getenv("DUTYWATCH_ROOT") == "" {
		l.Root = filepath.Dir(path)
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	l.resolve()
	return l, nil
}

func (l Layout) Validate() error {
	var errs []error
	if l.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if l.StopTimeout <= 0 {
		errs = append(errs, errors.New("stop_timeout must be positive"))
	}
	if l.LogCeiling <= 0 {
		errs = append(errs, errors.New("log_ceiling must be positive"))
	}
	if l.Worker.Exec == "" {
		errs = append(errs, errors.New("worker.exec is required"))
	}
	if l.Collector.Interval <= 0 {
		errs = append(errs, errors.New("collector.interval must be positive"))
	}
	if l.Collector.TailLines <= 0 {
		errs = append(errs, errors.New("collector.tail_lines must be positive"))
	}
	return errors.Join(errs...)
}

// resolve makes every path absolute under Root.
func (l *Layout) resolve() {
	if abs, err := filepath.Abs(l.Root); err == nil {
		l.Root = abs
	}
	for _, p := range []*string{
		&l.WorkerLog, &l.ReasonFile, &l.EventFile, &l.QueueFile,
		&l.WatermarkFile, &l.OptionsFile, &l.RunDir, &l.Collector.Log, &l.Log.File,
	} {
		*p = l.Path(*p)
	}
	for i := range l.ExtraLogs {
		l.ExtraLogs[i] = l.Path(l.ExtraLogs[i])
	}
	if l.Worker.CoreScript != "" {
		l.Worker.CoreScript = l.Path(l.Worker.CoreScript)
	}
	if l.Worker.CommandsGlob != "" {
		l.Worker.CommandsGlob = l.Path(l.Worker.CommandsGlob)
	}
}

// Path resolves p against Root; absolute and empty paths are returned as is.
func (l Layout) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(l.Root, p)
}

// WorkerScript picks the worker script: BOT_FILE when set, otherwise the most
// recently modified match of Worker.Glob, otherwise Worker.Default.
func (l Layout) WorkerScript(opts Options) string {
	if opts.WorkerFile != "" {
		return l.Path(opts.WorkerFile)
	}
	if l.Worker.Glob != "" {
		if newest := newestMatch(l.Path(l.Worker.Glob)); newest != "" {
			return newest
		}
	}
	return l.Path(l.Worker.Default)
}

func newestMatch(pattern string) string {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return ""
	}
	var best string
	var bestTime time.Time
	for _, m := range matches {
		st, err := os.Stat(m)
		if err != nil || st.IsDir() {
			continue
		}
		if best == "" || st.ModTime().After(bestTime) {
			best, bestTime = m, st.ModTime()
		}
	}
	return best
}
