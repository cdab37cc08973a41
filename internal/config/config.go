package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Defaults match the gateway's own configuration so that a bare
// `gatewayctl start` supervises a stock deployment.
const (
	DefaultHost      = "0.0.0.0"
	DefaultPort      = 18082
	DefaultLogLevel  = "info"
	DefaultConfigDir = "./config"
	DefaultDataDir   = "./data"
	DefaultCommand   = "docker-mcp-gateway"
	DefaultEnvFile   = "gateway.env"

	HealthPath = "/api/health"
)

// Config is the fully resolved supervisor configuration. It is built once
// at invocation start and handed to each component constructor; nothing
// reads the environment after Load returns.
type Config struct {
	Host      string
	Port      int
	LogLevel  string
	ConfigDir string
	DataDir   string
	Debug     bool

	// Command is the shell command that launches the gateway. Its first
	// token doubles as the process-table signature used to rediscover a
	// running gateway when the pidfile is lost.
	Command string

	// extra holds keys from the env file that the supervisor itself does
	// not interpret; they are still exported to the spawned gateway.
	extra map[string]string
}

var knownKeys = []string{"host", "port", "log_level", "config_dir", "data_dir", "debug", "gateway_cmd"}

// Load reads the optional key=value env file at path, overlays real
// environment variables on top, and fills remaining gaps with defaults.
// A missing env file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("host", DefaultHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("config_dir", DefaultConfigDir)
	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("debug", false)
	v.SetDefault("gateway_cmd", DefaultCommand)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("dotenv")
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); statErr == nil {
				return nil, fmt.Errorf("read env file %s: %w", path, err)
			}
		}
	}

	// Real environment wins over the file: HOST, PORT, LOG_LEVEL, ...
	v.AutomaticEnv()
	for _, k := range knownKeys {
		_ = v.BindEnv(k, strings.ToUpper(k))
	}

	cfg := &Config{
		Host:      v.GetString("host"),
		Port:      v.GetInt("port"),
		LogLevel:  strings.ToLower(v.GetString("log_level")),
		ConfigDir: v.GetString("config_dir"),
		DataDir:   v.GetString("data_dir"),
		Debug:     v.GetBool("debug"),
		Command:   v.GetString("gateway_cmd"),
		extra:     make(map[string]string),
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("gateway command must not be empty")
	}

	// Pass through unknown env-file keys untouched.
	for _, k := range v.AllKeys() {
		if isKnownKey(k) {
			continue
		}
		cfg.extra[strings.ToUpper(k)] = v.GetString(k)
	}
	return cfg, nil
}

func isKnownKey(k string) bool {
	for _, known := range knownKeys {
		if k == known {
			return true
		}
	}
	return false
}

// Signature returns the process-table substring identifying the gateway:
// the basename of the command's first token.
func (c *Config) Signature() string {
	fields := strings.Fields(c.Command)
	if len(fields) == 0 {
		return ""
	}
	return filepath.Base(fields[0])
}

func (c *Config) PIDFile() string        { return filepath.Join(c.DataDir, "gateway.pid") }
func (c *Config) LockFile() string       { return filepath.Join(c.DataDir, "gateway.lock") }
func (c *Config) LogDir() string         { return filepath.Join(c.DataDir, "logs") }
func (c *Config) OutputLog() string      { return filepath.Join(c.LogDir(), "gateway.out.log") }
func (c *Config) DiagnosticsLog() string { return filepath.Join(c.LogDir(), "gateway.err.log") }
func (c *Config) BackupDir() string      { return filepath.Join(c.DataDir, "backups") }

// ProbeHost is the address used for local HTTP probes; a wildcard bind
// address is not dialable, so it maps to loopback.
func (c *Config) ProbeHost() string {
	if c.Host == "0.0.0.0" || c.Host == "::" || c.Host == "" {
		return "127.0.0.1"
	}
	return c.Host
}

func (c *Config) HealthURL() string {
	return fmt.Sprintf("http://%s:%d%s", c.ProbeHost(), c.Port, HealthPath)
}

// EnsureDirs creates the directories the supervisor writes to.
func (c *Config) EnsureDirs() error {
	for _, d := range []string{c.ConfigDir, c.DataDir, c.LogDir(), c.BackupDir()} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// Environ returns the merged environment for the spawned gateway: the
// supervisor's own environment plus the resolved configuration, so the
// gateway observes exactly the values the supervisor acted on.
func (c *Config) Environ() []string {
	env := os.Environ()
	for k, val := range c.extra {
		env = append(env, k+"="+val)
	}
	env = append(env,
		"HOST="+c.Host,
		fmt.Sprintf("PORT=%d", c.Port),
		"LOG_LEVEL="+c.LogLevel,
		"CONFIG_DIR="+c.ConfigDir,
		"DATA_DIR="+c.DataDir,
		fmt.Sprintf("DEBUG=%t", c.Debug),
	)
	return env
}
