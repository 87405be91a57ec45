// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/autoapply/api/schemas"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "autoapply", cfg.Logger().ServiceName)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 5, cfg.Run().Quota)
	assert.Equal(t, schemas.ScanFixedCount, cfg.Run().ScanMode)
	assert.Equal(t, 40, cfg.Reveal().StepBudget)
	assert.Equal(t, 900*time.Millisecond, cfg.Reveal().Pause)
	assert.Equal(t, 0.9, cfg.Reveal().ViewportFraction)
	assert.Equal(t, 1200*time.Millisecond, cfg.Workflow().OpenSettle)
	assert.Equal(t, 600*time.Millisecond, cfg.Workflow().DismissSettle)
	assert.Equal(t, 2, cfg.Workflow().MaxDismissals)
	assert.Equal(t, "prefix:apply", cfg.Labels().Primary)
	assert.Equal(t, "contains:close|cancel|back", cfg.Labels().Dismiss)
	assert.Equal(t, 2, cfg.Network().IdleMaxInflight)
	assert.Equal(t, 1366, cfg.Browser().Viewport["width"])

	// The defaults must always pass validation.
	require.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		assert.NoError(t, cfg.Validate())

		missingTarget := *cfg
		missingTarget.TargetCfg.SurfaceURL = ""
		err := missingTarget.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "target.origin and target.surface_url are required")

		badJitter := *cfg
		badJitter.HumanoidCfg.JitterRatio = 1.5
		err = badJitter.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "humanoid.jitter_ratio")

		badFormat := *cfg
		badFormat.ReportCfg.Format = "sarif"
		err = badFormat.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "report.format")
	})

	t.Run("Run Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Run()
		assert.NoError(t, valid.Validate())

		zeroQuota := valid
		zeroQuota.Quota = 0
		err := zeroQuota.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "quota must be a positive integer")

		badMode := valid
		badMode.ScanMode = "sideways"
		err = badMode.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "scan_mode")

		noTimeout := valid
		noTimeout.PerItemTimeout = 0
		assert.Error(t, noTimeout.Validate())
	})

	t.Run("Workflow Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Workflow()
		assert.NoError(t, valid.Validate())

		unbounded := valid
		unbounded.DialogProbe = 0
		err := unbounded.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "dialog_probe must be a positive duration")

		noDismiss := valid
		noDismiss.MaxDismissals = 0
		assert.Error(t, noDismiss.Validate())
	})

	t.Run("Reveal Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Reveal()
		assert.NoError(t, valid.Validate())

		overscroll := valid
		overscroll.ViewportFraction = 1.5
		assert.Error(t, overscroll.Validate())

		noBudget := valid
		noBudget.StepBudget = 0
		err := noBudget.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "step_budget")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
run:
  quota: 3
  scan_mode: live-rescan
workflow:
  dialog_probe: 750ms
labels:
  open: "contains:details"
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, 3, cfg.Run().Quota)
		assert.Equal(t, schemas.ScanLiveRescan, cfg.Run().ScanMode)
		assert.Equal(t, 750*time.Millisecond, cfg.Workflow().DialogProbe)
		assert.Equal(t, "contains:details", cfg.Labels().Open)
		// A default value is still present.
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("run.quota", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "quota must be a positive integer")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
database:
  url: "postgres://configfile/db"
`)))

		t.Setenv("AUTOAPPLY_COOKIES", `[{"name":"sessionid","value":"abc"}]`)
		t.Setenv("AUTOAPPLY_DATABASE_URL", "postgres://envvar/db")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, `[{"name":"sessionid","value":"abc"}]`, cfg.Auth().CookiesJSON)
		// The env var overrides the value from the config buffer.
		assert.Equal(t, "postgres://envvar/db", cfg.Database().URL)
	})
}

func TestSetters(t *testing.T) {
	var cfg Interface = NewDefaultConfig()

	cfg.SetBrowserHeadless(false)
	cfg.SetTargetOrigin("https://example.com")
	cfg.SetTargetSurfaceURL("https://example.com/jobs")
	cfg.SetAuthCookiesFile("~/cookies.json")
	cfg.SetRunQuota(9)
	cfg.SetRunScanMode(schemas.ScanLiveRescan)
	cfg.SetReportFormat("json")
	cfg.SetReportOutput("out.json")

	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, "https://example.com", cfg.Target().Origin)
	assert.Equal(t, "https://example.com/jobs", cfg.Target().SurfaceURL)
	assert.Equal(t, "~/cookies.json", cfg.Auth().CookiesFile)
	assert.Equal(t, 9, cfg.Run().Quota)
	assert.Equal(t, schemas.ScanLiveRescan, cfg.Run().ScanMode)
	assert.Equal(t, "json", cfg.Report().Format)
	assert.Equal(t, "out.json", cfg.Report().Output)
}
