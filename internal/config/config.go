package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Triggers    TriggersConfig    `yaml:"triggers"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Audio       AudioConfig       `yaml:"audio"`
	Remote      RemoteConfig      `yaml:"remote"`
	Serve       ServeConfig       `yaml:"serve"`
	Control     ControlConfig     `yaml:"control"`
	Playlist    PlaylistConfig    `yaml:"playlist"`
}

// LogConfig represents logging settings
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// TriggersConfig represents trigger discovery settings
type TriggersConfig struct {
	// Discovery is "helper" (privileged helper via sudo), "proc" (read the
	// device list directly) or "none" (keyboard triggers only)
	Discovery    string   `yaml:"discovery"`
	Helper       string   `yaml:"helper,omitempty"`
	DevicesFile  string   `yaml:"devices_file,omitempty"`
	PollInterval Duration `yaml:"poll_interval"`
	Keys         string   `yaml:"keys,omitempty"` // One virtual trigger per key
}

// CalibrationConfig represents where calibration results are kept
type CalibrationConfig struct {
	StateDir string `yaml:"state_dir"`
}

// AudioConfig represents local playback settings
type AudioConfig struct {
	Buffer Duration `yaml:"buffer"`
}

// RemoteConfig represents the connection to a remote player
type RemoteConfig struct {
	Address   string   `yaml:"address,omitempty"`
	StatusTTL Duration `yaml:"status_ttl"`
}

// ServeConfig represents the player server settings
type ServeConfig struct {
	Address       string `yaml:"address"`
	MaxChunks     int    `yaml:"max_chunks"`
	MaxChunkBytes int    `yaml:"max_chunk_bytes"`
}

// ControlConfig represents control loop settings
type ControlConfig struct {
	BackwardPolicy  string   `yaml:"backward_policy"`
	RefreshInterval Duration `yaml:"refresh_interval"`
	FlashDuration   Duration `yaml:"flash_duration"`
	DisplayWidth    int      `yaml:"display_width"`
}

// PlaylistConfig represents the sequences to load
type PlaylistConfig struct {
	Paths []string `yaml:"paths"`
}

// Duration is a time.Duration written as a string such as "200ms"
type Duration time.Duration

// D returns d as a time.Duration
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Triggers: TriggersConfig{
			Discovery:    "helper",
			Helper:       "/usr/local/bin/trigs-discover",
			DevicesFile:  "/proc/bus/input/devices",
			PollInterval: Duration(200 * time.Millisecond),
		},
		Calibration: CalibrationConfig{
			StateDir: defaultStateDir(),
		},
		Audio: AudioConfig{
			Buffer: Duration(100 * time.Millisecond),
		},
		Remote: RemoteConfig{
			StatusTTL: Duration(time.Millisecond),
		},
		Serve: ServeConfig{
			Address:       ":8000",
			MaxChunks:     16,
			MaxChunkBytes: 256 << 20,
		},
		Control: ControlConfig{
			BackwardPolicy:  "undo",
			RefreshInterval: Duration(time.Second),
			FlashDuration:   Duration(300 * time.Millisecond),
			DisplayWidth:    20,
		},
	}
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "trigs", "state")
	}
	return filepath.Join(os.TempDir(), "trigs-state")
}

// LoadConfig loads configuration from file. Settings missing from the
// file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, return default config
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves configuration to file
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks settings that cannot be checked by their consumers alone
func (c *Config) Validate() error {
	switch c.Triggers.Discovery {
	case "helper", "proc", "none":
	default:
		return fmt.Errorf("unknown trigger discovery mode: %s", c.Triggers.Discovery)
	}
	if c.Triggers.Discovery == "none" && len(c.Triggers.Keys) < 2 {
		return fmt.Errorf("keyboard-only triggers need at least two keys")
	}
	if c.Serve.MaxChunks < 1 || c.Serve.MaxChunkBytes < 1 {
		return fmt.Errorf("serve limits must be positive")
	}
	return nil
}
