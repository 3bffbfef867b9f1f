package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// AgentConfig: локальный offline-first процесс рядом с UI.
type AgentConfig struct {
	Port           int           `yaml:"port"`
	ServerURL      string        `yaml:"server_url"`
	Storage        string        `yaml:"storage"` // file | sqlite | redis | memory
	DataDir        string        `yaml:"data_dir"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
	FontPath       string        `yaml:"font_path"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
	ToEmail      string `yaml:"to_email"`
}

type RemindersConfig struct {
	LeadTime time.Duration  `yaml:"lead_time"`
	Telegram TelegramConfig `yaml:"telegram"`
	Email    EmailConfig    `yaml:"email"`
}

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`
	Agent     AgentConfig     `yaml:"agent"`
	Redis     RedisConfig     `yaml:"redis"`
	Reminders RemindersConfig `yaml:"reminders"`
	Log       LogConfig       `yaml:"log"`
}

// LoadConfig reads the YAML file at path, then applies TASKS_* environment overrides.
// A missing file is not an error: defaults plus environment are enough to run the agent.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	var cfg Config

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		// an empty file decodes to io.EOF and means "defaults only"
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Agent.Port == 0 {
		cfg.Agent.Port = 8081
	}
	if cfg.Agent.ServerURL == "" {
		cfg.Agent.ServerURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	cfg.Agent.ServerURL = strings.TrimRight(cfg.Agent.ServerURL, "/")
	if cfg.Agent.Storage == "" {
		cfg.Agent.Storage = "file"
	}
	if cfg.Agent.DataDir == "" {
		cfg.Agent.DataDir = "./data"
	}
	if cfg.Agent.RequestTimeout <= 0 {
		cfg.Agent.RequestTimeout = 10 * time.Second
	}
	if cfg.Agent.ProbeInterval <= 0 {
		cfg.Agent.ProbeInterval = 5 * time.Second
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "taskmanager:"
	}
	if cfg.Reminders.LeadTime <= 0 {
		cfg.Reminders.LeadTime = 30 * time.Minute
	}
	if cfg.Reminders.Email.SMTPPort == 0 {
		cfg.Reminders.Email.SMTPPort = 587
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 10
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 30
	}
}

// applyEnv: переменные окружения перекрывают файл (TASKS_SERVER_URL, TASKS_DATABASE_URL, ...).
func applyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("tasks")
	v.AutomaticEnv()

	if s := v.GetString("server_url"); s != "" {
		cfg.Agent.ServerURL = s
	}
	if s := v.GetString("database_url"); s != "" {
		cfg.Database.DSN = s
	}
	if s := v.GetString("storage"); s != "" {
		cfg.Agent.Storage = s
	}
	if s := v.GetString("data_dir"); s != "" {
		cfg.Agent.DataDir = s
	}
	if n := v.GetInt("server_port"); n > 0 {
		cfg.Server.Port = n
	}
	if n := v.GetInt("agent_port"); n > 0 {
		cfg.Agent.Port = n
	}
	if s := v.GetString("redis_addr"); s != "" {
		cfg.Redis.Addr = s
	}
	if s := v.GetString("telegram_token"); s != "" {
		cfg.Reminders.Telegram.Token = s
	}
	if s := v.GetString("log_level"); s != "" {
		cfg.Log.Level = s
	}
}
