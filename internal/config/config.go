package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultConfigDir    = ".shopbot"
	DefaultConfigFile   = "config.yaml"
	DefaultPolicyFile   = "policy.yaml"
	DefaultLogFile      = "audit.jsonl"
	DefaultPacksDir     = "packs"
	DefaultDatabaseFile = "shop.db"
	EnvPrefix           = "SHOPBOT"
)

type Config struct {
	ConfigDir  string `mapstructure:"-"`
	PolicyPath string `mapstructure:"policy_path"`
	LogPath    string `mapstructure:"log_path"`
	PacksDir   string `mapstructure:"packs_dir"`
	Mode       string `mapstructure:"mode"`

	Database DatabaseConfig `mapstructure:"database"`
	Model    ModelConfig    `mapstructure:"model"`
	History  HistoryConfig  `mapstructure:"history"`
	Bot      BotConfig      `mapstructure:"bot"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Log      LogConfig      `mapstructure:"log"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type ModelConfig struct {
	Name    string        `mapstructure:"name"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type HistoryConfig struct {
	MaxLength int `mapstructure:"max_length"`
}

// BotConfig holds the persona. SystemPrompt and Greeting may use the
// {bot}, {username} and {email} placeholders.
type BotConfig struct {
	Name         string `mapstructure:"name"`
	SystemPrompt string `mapstructure:"system_prompt"`
	Greeting     string `mapstructure:"greeting"`
}

type ToolsConfig struct {
	SQLRowLimit        int           `mapstructure:"sql_row_limit"`
	SQLTimeout         time.Duration `mapstructure:"sql_timeout"`
	CommandTimeout     time.Duration `mapstructure:"command_timeout"`
	CommandOutputLimit int           `mapstructure:"command_output_limit"`
	WorkDir            string        `mapstructure:"work_dir"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Journal bool   `mapstructure:"journal"`
}

// Options are the command-line overrides. Empty fields leave the lower
// layers in place.
type Options struct {
	ConfigFile string
	PolicyPath string
	LogPath    string
	Mode       string
	// Home replaces the user's home directory; EnvFile defaults to ".env".
	Home    string
	EnvFile string
}

// Load layers defaults, the config file, SHOPBOT_* environment variables
// (after loading .env) and opts, in increasing precedence.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	home := opts.Home
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return nil, err
		}
	}
	configDir := filepath.Join(home, DefaultConfigDir)
	if err := ensureDir(configDir); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, configDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", opts.ConfigFile, err)
		}
	} else {
		path := filepath.Join(configDir, DefaultConfigFile)
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	for key, val := range map[string]string{
		"policy_path": opts.PolicyPath,
		"log_path":    opts.LogPath,
		"mode":        opts.Mode,
	} {
		if val != "" {
			v.Set(key, val)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ConfigDir = configDir
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("policy_path", filepath.Join(configDir, DefaultPolicyFile))
	v.SetDefault("log_path", filepath.Join(configDir, DefaultLogFile))
	v.SetDefault("packs_dir", filepath.Join(configDir, DefaultPacksDir))
	v.SetDefault("mode", "basic")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", filepath.Join(configDir, DefaultDatabaseFile))

	v.SetDefault("model.name", "gpt-4o-mini")
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.timeout", 30*time.Second)

	v.SetDefault("history.max_length", 20)

	v.SetDefault("bot.name", "Juicy")
	v.SetDefault("bot.system_prompt", "")
	v.SetDefault("bot.greeting", "")

	v.SetDefault("tools.sql_row_limit", 50)
	v.SetDefault("tools.sql_timeout", 5*time.Second)
	v.SetDefault("tools.command_timeout", 10*time.Second)
	v.SetDefault("tools.command_output_limit", 16<<10)
	v.SetDefault("tools.work_dir", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.journal", false)
}

func ensureDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0700)
	}
	return nil
}
