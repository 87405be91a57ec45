// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/autoapply/api/schemas"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Network() NetworkConfig
	Target() TargetConfig
	Auth() AuthConfig
	Labels() LabelsConfig
	Workflow() WorkflowConfig
	Reveal() RevealConfig
	Run() RunConfig
	Humanoid() HumanoidConfig
	Artifacts() ArtifactsConfig
	Report() ReportConfig

	// Browser Setters
	SetBrowserHeadless(bool)

	// Target Setters
	SetTargetOrigin(string)
	SetTargetSurfaceURL(string)

	// Auth Setters
	SetAuthCookiesFile(string)

	// Run Setters
	SetRunQuota(int)
	SetRunScanMode(schemas.ScanMode)

	// Report Setters
	SetReportFormat(string)
	SetReportOutput(string)
}

// Config holds the entire application configuration. Sections are exported so
// viper can decode into them, access elsewhere goes through Interface.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	NetworkCfg   NetworkConfig   `mapstructure:"network" yaml:"network"`
	TargetCfg    TargetConfig    `mapstructure:"target" yaml:"target"`
	AuthCfg      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	LabelsCfg    LabelsConfig    `mapstructure:"labels" yaml:"labels"`
	WorkflowCfg  WorkflowConfig  `mapstructure:"workflow" yaml:"workflow"`
	RevealCfg    RevealConfig    `mapstructure:"reveal" yaml:"reveal"`
	RunCfg       RunConfig       `mapstructure:"run" yaml:"run"`
	HumanoidCfg  HumanoidConfig  `mapstructure:"humanoid" yaml:"humanoid"`
	ArtifactsCfg ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	ReportCfg    ReportConfig    `mapstructure:"report" yaml:"report"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Network() NetworkConfig     { return c.NetworkCfg }
func (c *Config) Target() TargetConfig       { return c.TargetCfg }
func (c *Config) Auth() AuthConfig           { return c.AuthCfg }
func (c *Config) Labels() LabelsConfig       { return c.LabelsCfg }
func (c *Config) Workflow() WorkflowConfig   { return c.WorkflowCfg }
func (c *Config) Reveal() RevealConfig       { return c.RevealCfg }
func (c *Config) Run() RunConfig             { return c.RunCfg }
func (c *Config) Humanoid() HumanoidConfig   { return c.HumanoidCfg }
func (c *Config) Artifacts() ArtifactsConfig { return c.ArtifactsCfg }
func (c *Config) Report() ReportConfig       { return c.ReportCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)         { c.BrowserCfg.Headless = b }
func (c *Config) SetTargetOrigin(s string)          { c.TargetCfg.Origin = s }
func (c *Config) SetTargetSurfaceURL(s string)      { c.TargetCfg.SurfaceURL = s }
func (c *Config) SetAuthCookiesFile(s string)       { c.AuthCfg.CookiesFile = s }
func (c *Config) SetRunQuota(q int)                 { c.RunCfg.Quota = q }
func (c *Config) SetRunScanMode(m schemas.ScanMode) { c.RunCfg.ScanMode = m }
func (c *Config) SetReportFormat(s string)          { c.ReportCfg.Format = s }
func (c *Config) SetReportOutput(s string)          { c.ReportCfg.Output = s }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the run history database connection details. An empty
// URL disables persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	DisableCache    bool           `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Debug           bool           `mapstructure:"debug" yaml:"debug"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent       string         `mapstructure:"user_agent" yaml:"user_agent"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
}

// NetworkConfig tunes navigation and idle detection.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	IdleQuietPeriod   time.Duration `mapstructure:"idle_quiet_period" yaml:"idle_quiet_period"`
	IdleMaxInflight   int           `mapstructure:"idle_max_inflight" yaml:"idle_max_inflight"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// TargetConfig names the two URLs of the remote application: the origin used
// for cookie domain resolution and the working surface that lists items.
type TargetConfig struct {
	Origin     string `mapstructure:"origin" yaml:"origin"`
	SurfaceURL string `mapstructure:"surface_url" yaml:"surface_url"`
}

// AuthConfig controls where session cookies come from and how a blocked
// session is recognized.
type AuthConfig struct {
	CookiesFile    string   `mapstructure:"cookies_file" yaml:"cookies_file"`
	CookiesJSON    string   `mapstructure:"cookies_json" yaml:"-"`
	DefaultDomain  string   `mapstructure:"default_domain" yaml:"default_domain"`
	BlockMarkers   []string `mapstructure:"block_markers" yaml:"block_markers"`
	AbortOnBlocked bool     `mapstructure:"abort_on_blocked" yaml:"abort_on_blocked"`
}

// LabelsConfig holds the label predicates, written as "mode:text[|text...]"
// where mode is prefix, contains, exact or regex.
type LabelsConfig struct {
	Open         string `mapstructure:"open" yaml:"open"`
	Primary      string `mapstructure:"primary" yaml:"primary"`
	DialogAction string `mapstructure:"dialog_action" yaml:"dialog_action"`
	Dismiss      string `mapstructure:"dismiss" yaml:"dismiss"`
	Done         string `mapstructure:"done" yaml:"done"`
	Confirmation string `mapstructure:"confirmation" yaml:"confirmation"`
}

// WorkflowConfig bounds every wait inside one item's workflow.
type WorkflowConfig struct {
	OpenSettle     time.Duration `mapstructure:"open_settle" yaml:"open_settle"`
	PrimaryWait    time.Duration `mapstructure:"primary_wait" yaml:"primary_wait"`
	ActionSettle   time.Duration `mapstructure:"action_settle" yaml:"action_settle"`
	DialogProbe    time.Duration `mapstructure:"dialog_probe" yaml:"dialog_probe"`
	InlineProbe    time.Duration `mapstructure:"inline_probe" yaml:"inline_probe"`
	ConfirmProbe   time.Duration `mapstructure:"confirm_probe" yaml:"confirm_probe"`
	DismissSettle  time.Duration `mapstructure:"dismiss_settle" yaml:"dismiss_settle"`
	CleanupTimeout time.Duration `mapstructure:"cleanup_timeout" yaml:"cleanup_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxDismissals  int           `mapstructure:"max_dismissals" yaml:"max_dismissals"`
	DismissKey     string        `mapstructure:"dismiss_key" yaml:"dismiss_key"`
}

// RevealConfig tunes lazy-load triggering.
type RevealConfig struct {
	StepBudget       int           `mapstructure:"step_budget" yaml:"step_budget"`
	IdleThreshold    int           `mapstructure:"idle_threshold" yaml:"idle_threshold"`
	Pause            time.Duration `mapstructure:"pause" yaml:"pause"`
	ViewportFraction float64       `mapstructure:"viewport_fraction" yaml:"viewport_fraction"`
	InitialWait      time.Duration `mapstructure:"initial_wait" yaml:"initial_wait"`
}

// RunConfig configures the orchestrator loop.
type RunConfig struct {
	Quota          int              `mapstructure:"quota" yaml:"quota"`
	ScanMode       schemas.ScanMode `mapstructure:"scan_mode" yaml:"scan_mode"`
	PerItemTimeout time.Duration    `mapstructure:"per_item_timeout" yaml:"per_item_timeout"`
	InterItemPause time.Duration    `mapstructure:"inter_item_pause" yaml:"inter_item_pause"`
	MaxItems       int              `mapstructure:"max_items" yaml:"max_items"`
	AbortOnFatal   bool             `mapstructure:"abort_on_fatal" yaml:"abort_on_fatal"`
}

// HumanoidConfig controls jitter applied to settle pauses so consecutive
// items are not driven on a fixed cadence.
type HumanoidConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	JitterRatio float64       `mapstructure:"jitter_ratio" yaml:"jitter_ratio"`
	MinPause    time.Duration `mapstructure:"min_pause" yaml:"min_pause"`
	Seed        int64         `mapstructure:"seed" yaml:"seed"`
}

// ArtifactsConfig controls diagnostic snapshot capture.
type ArtifactsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir       string `mapstructure:"dir" yaml:"dir"`
	OnFailure bool   `mapstructure:"on_failure" yaml:"on_failure"`
	AtRunEnd  bool   `mapstructure:"at_run_end" yaml:"at_run_end"`
}

// ReportConfig selects the optional run report written alongside the log.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "autoapply")
	v.SetDefault("logger.log_file", "autoapply.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1366, "height": 900})

	// -- Network --
	v.SetDefault("network.navigation_timeout", "60s")
	v.SetDefault("network.idle_quiet_period", "500ms")
	v.SetDefault("network.idle_max_inflight", 2)
	v.SetDefault("network.post_load_wait", "1500ms")
	v.SetDefault("network.action_timeout", "10s")

	// -- Target --
	v.SetDefault("target.origin", "https://www.instahyre.com")
	v.SetDefault("target.surface_url", "https://www.instahyre.com/candidate/opportunities/?matching=true")

	// -- Auth --
	v.SetDefault("auth.block_markers", []string{
		"access denied",
		"unusual traffic",
		"verify you are human",
		"captcha",
	})
	v.SetDefault("auth.abort_on_blocked", false)

	// -- Labels --
	v.SetDefault("labels.open", "prefix:view")
	v.SetDefault("labels.primary", "prefix:apply")
	v.SetDefault("labels.dialog_action", "prefix:apply")
	v.SetDefault("labels.dismiss", "contains:close|cancel|back")
	v.SetDefault("labels.done", "prefix:applied")
	v.SetDefault("labels.confirmation", "")

	// -- Workflow --
	v.SetDefault("workflow.open_settle", "1200ms")
	v.SetDefault("workflow.primary_wait", "5s")
	v.SetDefault("workflow.action_settle", "1200ms")
	v.SetDefault("workflow.dialog_probe", "3s")
	v.SetDefault("workflow.inline_probe", "1500ms")
	v.SetDefault("workflow.confirm_probe", "2s")
	v.SetDefault("workflow.dismiss_settle", "600ms")
	v.SetDefault("workflow.cleanup_timeout", "10s")
	v.SetDefault("workflow.poll_interval", "250ms")
	v.SetDefault("workflow.max_dismissals", 2)
	v.SetDefault("workflow.dismiss_key", "Escape")

	// -- Reveal --
	v.SetDefault("reveal.step_budget", 40)
	v.SetDefault("reveal.idle_threshold", 1)
	v.SetDefault("reveal.pause", "900ms")
	v.SetDefault("reveal.viewport_fraction", 0.9)
	v.SetDefault("reveal.initial_wait", "2s")

	// -- Run --
	v.SetDefault("run.quota", 5)
	v.SetDefault("run.scan_mode", string(schemas.ScanFixedCount))
	v.SetDefault("run.per_item_timeout", "45s")
	v.SetDefault("run.inter_item_pause", "1s")
	v.SetDefault("run.max_items", 500)
	v.SetDefault("run.abort_on_fatal", true)

	// -- Humanoid --
	v.SetDefault("humanoid.enabled", true)
	v.SetDefault("humanoid.jitter_ratio", 0.2)
	v.SetDefault("humanoid.min_pause", "50ms")

	// -- Artifacts --
	v.SetDefault("artifacts.enabled", false)
	v.SetDefault("artifacts.dir", "~/.autoapply/artifacts")
	v.SetDefault("artifacts.on_failure", true)
	v.SetDefault("artifacts.at_run_end", false)

	// -- Report --
	v.SetDefault("report.format", "text")
	v.SetDefault("report.output", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("auth.cookies_json", "AUTOAPPLY_COOKIES")
	v.BindEnv("database.url", "AUTOAPPLY_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the cookies if Unmarshal didn't pick them up
	if cfg.AuthCfg.CookiesJSON == "" {
		cfg.AuthCfg.CookiesJSON = os.Getenv("AUTOAPPLY_COOKIES")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.TargetCfg.Origin == "" || c.TargetCfg.SurfaceURL == "" {
		return fmt.Errorf("target.origin and target.surface_url are required")
	}
	if err := c.RunCfg.Validate(); err != nil {
		return fmt.Errorf("run configuration invalid: %w", err)
	}
	if err := c.WorkflowCfg.Validate(); err != nil {
		return fmt.Errorf("workflow configuration invalid: %w", err)
	}
	if err := c.RevealCfg.Validate(); err != nil {
		return fmt.Errorf("reveal configuration invalid: %w", err)
	}
	if c.HumanoidCfg.JitterRatio < 0 || c.HumanoidCfg.JitterRatio >= 1 {
		return fmt.Errorf("humanoid.jitter_ratio must be in [0, 1)")
	}
	switch c.ReportCfg.Format {
	case "", "text", "json", "junit":
	default:
		return fmt.Errorf("report.format %q is not supported", c.ReportCfg.Format)
	}
	return nil
}

// Validate checks the run loop settings.
func (r *RunConfig) Validate() error {
	if r.Quota <= 0 {
		return fmt.Errorf("quota must be a positive integer")
	}
	if !r.ScanMode.Valid() {
		return fmt.Errorf("scan_mode %q must be %q or %q", r.ScanMode, schemas.ScanFixedCount, schemas.ScanLiveRescan)
	}
	if r.PerItemTimeout <= 0 {
		return fmt.Errorf("per_item_timeout must be a positive duration")
	}
	if r.InterItemPause < 0 {
		return fmt.Errorf("inter_item_pause must not be negative")
	}
	if r.MaxItems <= 0 {
		return fmt.Errorf("max_items must be a positive integer")
	}
	return nil
}

// Validate checks that every workflow wait is bounded.
func (w *WorkflowConfig) Validate() error {
	bounded := map[string]time.Duration{
		"primary_wait":    w.PrimaryWait,
		"dialog_probe":    w.DialogProbe,
		"inline_probe":    w.InlineProbe,
		"cleanup_timeout": w.CleanupTimeout,
		"poll_interval":   w.PollInterval,
	}
	for name, d := range bounded {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	if w.MaxDismissals <= 0 {
		return fmt.Errorf("max_dismissals must be greater than 0")
	}
	return nil
}

// Validate checks the reveal loop settings.
func (r *RevealConfig) Validate() error {
	if r.StepBudget <= 0 {
		return fmt.Errorf("step_budget must be greater than 0")
	}
	if r.IdleThreshold <= 0 {
		return fmt.Errorf("idle_threshold must be greater than 0")
	}
	if r.ViewportFraction <= 0 || r.ViewportFraction > 1 {
		return fmt.Errorf("viewport_fraction must be in (0, 1]")
	}
	return nil
}
