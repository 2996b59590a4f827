package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func loadIn(t *testing.T, opts Options) *Config {
	t.Helper()
	if opts.Home == "" {
		opts.Home = t.TempDir()
	}
	if opts.EnvFile == "" {
		opts.EnvFile = filepath.Join(opts.Home, "missing.env")
	}
	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	cfg := loadIn(t, Options{Home: home})

	dir := filepath.Join(home, DefaultConfigDir)
	if cfg.ConfigDir != dir {
		t.Errorf("ConfigDir = %q, want %q", cfg.ConfigDir, dir)
	}
	if info, err := os.Stat(dir); err != nil || info.Mode().Perm() != 0700 {
		t.Errorf("config dir not created with 0700: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"policy_path", cfg.PolicyPath, filepath.Join(dir, DefaultPolicyFile)},
		{"log_path", cfg.LogPath, filepath.Join(dir, DefaultLogFile)},
		{"packs_dir", cfg.PacksDir, filepath.Join(dir, DefaultPacksDir)},
		{"mode", cfg.Mode, "basic"},
		{"database.driver", cfg.Database.Driver, "sqlite"},
		{"database.dsn", cfg.Database.DSN, filepath.Join(dir, DefaultDatabaseFile)},
		{"model.timeout", cfg.Model.Timeout, 30 * time.Second},
		{"history.max_length", cfg.History.MaxLength, 20},
		{"bot.name", cfg.Bot.Name, "Juicy"},
		{"tools.sql_row_limit", cfg.Tools.SQLRowLimit, 50},
		{"tools.command_timeout", cfg.Tools.CommandTimeout, 10 * time.Second},
		{"tools.command_output_limit", cfg.Tools.CommandOutputLimit, 16 << 10},
		{"log.level", cfg.Log.Level, "info"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	home := t.TempDir()
	dir := filepath.Join(home, DefaultConfigDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	yaml := `mode: sql
history:
  max_length: 8
tools:
  sql_timeout: 2s
bot:
  name: Bjorn
`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := loadIn(t, Options{Home: home})
	if cfg.Mode != "sql" {
		t.Errorf("Mode = %q, want sql", cfg.Mode)
	}
	if cfg.History.MaxLength != 8 {
		t.Errorf("MaxLength = %d, want 8", cfg.History.MaxLength)
	}
	if cfg.Tools.SQLTimeout != 2*time.Second {
		t.Errorf("SQLTimeout = %v, want 2s", cfg.Tools.SQLTimeout)
	}
	if cfg.Bot.Name != "Bjorn" {
		t.Errorf("Bot.Name = %q, want Bjorn", cfg.Bot.Name)
	}
}

func TestLoadExplicitConfigFileMissing(t *testing.T) {
	_, err := Load(Options{Home: t.TempDir(), ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")})
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("SHOPBOT_MODE", "privileged")
	t.Setenv("SHOPBOT_DATABASE_DRIVER", "postgres")
	t.Setenv("SHOPBOT_MODEL_API_KEY", "sk-test")

	cfg := loadIn(t, Options{})
	if cfg.Mode != "privileged" {
		t.Errorf("Mode = %q, want privileged", cfg.Mode)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Model.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want sk-test", cfg.Model.APIKey)
	}
}

func TestOptionsOverrideEnvironment(t *testing.T) {
	t.Setenv("SHOPBOT_MODE", "privileged")

	cfg := loadIn(t, Options{Mode: "sql", PolicyPath: "/tmp/p.yaml"})
	if cfg.Mode != "sql" {
		t.Errorf("Mode = %q, want sql", cfg.Mode)
	}
	if cfg.PolicyPath != "/tmp/p.yaml" {
		t.Errorf("PolicyPath = %q", cfg.PolicyPath)
	}
}

func TestDotEnvFile(t *testing.T) {
	t.Setenv("SHOPBOT_BOT_NAME", "")
	os.Unsetenv("SHOPBOT_BOT_NAME")
	t.Cleanup(func() { os.Unsetenv("SHOPBOT_BOT_NAME") })

	home := t.TempDir()
	envFile := filepath.Join(home, ".env")
	if err := os.WriteFile(envFile, []byte("SHOPBOT_BOT_NAME=Dotty\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := loadIn(t, Options{Home: home, EnvFile: envFile})
	if cfg.Bot.Name != "Dotty" {
		t.Errorf("Bot.Name = %q, want Dotty", cfg.Bot.Name)
	}
}
