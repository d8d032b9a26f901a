// Package config loads heartsync settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/heartsync/internal/plugin"
	"github.com/ayusman/heartsync/internal/scoring"
)

// DefaultPath is tried when neither a flag nor HEARTSYNC_CONFIG names a file.
const DefaultPath = "config/heartsync.yaml"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

type Server struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

type Storage struct {
	Path string `yaml:"path"`
}

type Camera struct {
	ID              int     `yaml:"id"`
	ActiveFPS       int     `yaml:"active_fps"`
	IdleFPS         int     `yaml:"idle_fps"`
	MotionThreshold float64 `yaml:"motion_threshold"`
}

type Scoring struct {
	Interval   time.Duration   `yaml:"interval"`
	Weights    scoring.Weights `yaml:"weights"`
	StaleAfter time.Duration   `yaml:"stale_after"`
}

type Commentary struct {
	Interval        time.Duration `yaml:"interval"`
	ChangeThreshold float64       `yaml:"change_threshold"`
	// WriterCommand, when set, is asked for lines before the built-in ones.
	WriterCommand []string `yaml:"writer_command"`
	// SpeakCommand speaks each line, for example ["say"].
	SpeakCommand []string `yaml:"speak_command"`
}

type Audio struct {
	StemsDir string `yaml:"stems_dir"`
}

type Logging struct {
	Level         string `yaml:"level"`
	SnapshotEvery int    `yaml:"snapshot_every"`
}

type MQTT struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

type AMQP struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type Plugins struct {
	Dir      string           `yaml:"dir"`
	Timeout  time.Duration    `yaml:"timeout"`
	Bindings []plugin.Binding `yaml:"bindings"`
}

// Config is the complete application configuration.
type Config struct {
	Server     Server     `yaml:"server"`
	Storage    Storage    `yaml:"storage"`
	Camera     Camera     `yaml:"camera"`
	Scoring    Scoring    `yaml:"scoring"`
	Commentary Commentary `yaml:"commentary"`
	Audio      Audio      `yaml:"audio"`
	Logging    Logging    `yaml:"logging"`
	MQTT       MQTT       `yaml:"mqtt"`
	AMQP       AMQP       `yaml:"amqp"`
	Plugins    Plugins    `yaml:"plugins"`

	// Path is the file the config was read from, empty for defaults.
	Path string `yaml:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server: Server{
			Addr:      ":5000",
			StaticDir: "web",
		},
		Storage: Storage{
			Path: filepath.Join(home, ".heartsync", "heartsync.db"),
		},
		Camera: Camera{
			ID:              0,
			ActiveFPS:       15,
			IdleFPS:         5,
			MotionThreshold: 1.0,
		},
		Scoring: Scoring{
			Interval:   500 * time.Millisecond,
			Weights:    scoring.DefaultWeights(),
			StaleAfter: 5 * time.Second,
		},
		Commentary: Commentary{
			Interval:        30 * time.Second,
			ChangeThreshold: 0.2,
		},
		Logging: Logging{
			Level:         "info",
			SnapshotEvery: 10,
		},
		MQTT: MQTT{
			Topic:    "heartsync/biometrics",
			ClientID: "heartsync",
		},
		AMQP: AMQP{
			Exchange: "heartsync.state",
		},
		Plugins: Plugins{
			Dir:     "plugins",
			Timeout: 5 * time.Second,
		},
	}
}

// Resolve picks the config file: the explicit path, then HEARTSYNC_CONFIG,
// then DefaultPath if it exists. An empty result means defaults only.
func Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("HEARTSYNC_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

// Load reads the config at path over the defaults, applies environment
// overrides and validates the result. An empty path loads defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
		cfg.Path = path
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CAMERA_INDEX"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: CAMERA_INDEX=%q", ErrInvalid, v)
		}
		c.Camera.ID = id
	}
	if v := os.Getenv("HEARTSYNC_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("HEARTSYNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("HEARTSYNC_MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("HEARTSYNC_AMQP_URL"); v != "" {
		c.AMQP.URL = v
	}
	return nil
}

// Validate checks every setting the application relies on.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalid)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("%w: storage.path is required", ErrInvalid)
	}
	if c.Camera.ID < 0 {
		return fmt.Errorf("%w: camera.id must be >= 0", ErrInvalid)
	}
	if c.Camera.ActiveFPS <= 0 || c.Camera.IdleFPS <= 0 {
		return fmt.Errorf("%w: camera fps must be positive", ErrInvalid)
	}
	if c.Camera.IdleFPS > c.Camera.ActiveFPS {
		return fmt.Errorf("%w: camera.idle_fps exceeds camera.active_fps", ErrInvalid)
	}
	if c.Scoring.Interval <= 0 {
		return fmt.Errorf("%w: scoring.interval must be positive", ErrInvalid)
	}
	if c.Scoring.StaleAfter <= 0 {
		return fmt.Errorf("%w: scoring.stale_after must be positive", ErrInvalid)
	}
	if err := c.Scoring.Weights.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Commentary.Interval <= 0 || c.Commentary.ChangeThreshold <= 0 {
		return fmt.Errorf("%w: commentary interval and change_threshold must be positive", ErrInvalid)
	}
	if c.Logging.SnapshotEvery <= 0 {
		return fmt.Errorf("%w: logging.snapshot_every must be positive", ErrInvalid)
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		return fmt.Errorf("%w: mqtt.topic is required with a broker", ErrInvalid)
	}
	if c.AMQP.URL != "" && c.AMQP.Exchange == "" {
		return fmt.Errorf("%w: amqp.exchange is required with a url", ErrInvalid)
	}
	if c.Plugins.Timeout <= 0 {
		return fmt.Errorf("%w: plugins.timeout must be positive", ErrInvalid)
	}
	for i, b := range c.Plugins.Bindings {
		if !scoring.Level(b.Level).Valid() {
			return fmt.Errorf("%w: plugins.bindings[%d]: unknown level %q", ErrInvalid, i, b.Level)
		}
		if b.Plugin == "" || b.Action == "" {
			return fmt.Errorf("%w: plugins.bindings[%d]: plugin and action are required", ErrInvalid, i)
		}
	}
	return nil
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
