// Package config loads moodcam configuration from a YAML file, MOODCAM_*
// environment variables and defaults, in increasing order of precedence:
// defaults < file < environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/cycle"
	"github.com/teslashibe/go-moodcam/pkg/detect"
	"github.com/teslashibe/go-moodcam/pkg/web"
)

// EnvPrefix prefixes every environment override, e.g. MOODCAM_WEB_PORT.
const EnvPrefix = "MOODCAM"

// Narration providers.
const (
	ProviderLog    = "log"
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
	ProviderChain  = "chain" // openai, falling back to google
)

// Config holds all application configuration
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Web     WebConfig     `mapstructure:"web"`
	Camera  CameraConfig  `mapstructure:"camera"`
	Detect  DetectConfig  `mapstructure:"detect"`
	Cycle   CycleConfig   `mapstructure:"cycle"`
	Narrate NarrateConfig `mapstructure:"narrate"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Palette PaletteConfig `mapstructure:"palette"`
}

// LogConfig configures internal/log
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// WebConfig configures the dashboard
type WebConfig struct {
	Port      string `mapstructure:"port"`
	StaticDir string `mapstructure:"static_dir"`
}

// CameraConfig configures the video source
type CameraConfig struct {
	Source        string        `mapstructure:"source"` // webcam, push, webrtc
	Device        string        `mapstructure:"device"`
	Width         int           `mapstructure:"width"`
	Height        int           `mapstructure:"height"`
	FPS           int           `mapstructure:"fps"`
	JPEGQuality   int           `mapstructure:"jpeg_quality"`
	SignallingURL string        `mapstructure:"signalling_url"`
	Producer      string        `mapstructure:"producer"`
	MaxAge        time.Duration `mapstructure:"max_age"`
}

// DetectConfig configures the detector
type DetectConfig struct {
	FaceModel       string        `mapstructure:"face_model"`
	ExpressionModel string        `mapstructure:"expression_model"`
	InputSize       int           `mapstructure:"input_size"`
	FaceScore       float64       `mapstructure:"face_score"`
	NMSThreshold    float64       `mapstructure:"nms_threshold"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// CycleConfig configures the detection cadence
type CycleConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	GraceDelay   time.Duration `mapstructure:"grace_delay"`
	Threshold    float64       `mapstructure:"threshold"`
	HistoryLimit int           `mapstructure:"history_limit"`
	DisplayCount int           `mapstructure:"display_count"`
	StatsWindow  int           `mapstructure:"stats_window"`
}

// NarrateConfig configures announcements
type NarrateConfig struct {
	Provider string        `mapstructure:"provider"` // log, openai, google, chain
	Voice    string        `mapstructure:"voice"`
	Model    string        `mapstructure:"model"`
	Language string        `mapstructure:"language"`
	Rate     float64       `mapstructure:"rate"`
	Phrase   string        `mapstructure:"phrase"`
	Queue    int           `mapstructure:"queue"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AudioConfig configures playback
type AudioConfig struct {
	Player string `mapstructure:"player"`
}

// PaletteConfig points at an optional YAML palette override
type PaletteConfig struct {
	File string `mapstructure:"file"`
}

// defaults lists every key with its default. Registering each key also lets
// AutomaticEnv resolve nested keys during Unmarshal.
var defaults = map[string]interface{}{
	"log.level":  "info",
	"log.format": "",

	"web.port":       "8080",
	"web.static_dir": "./web",

	"camera.source":         camera.KindWebcam,
	"camera.device":         "0",
	"camera.width":          640,
	"camera.height":         480,
	"camera.fps":            30,
	"camera.jpeg_quality":   80,
	"camera.signalling_url": "",
	"camera.producer":       "",
	"camera.max_age":        "2s",

	"detect.face_model":       "models/face_detection_yunet_2023mar.onnx",
	"detect.expression_model": "models/emotion-ferplus-8.onnx",
	"detect.input_size":       416,
	"detect.face_score":       0.3,
	"detect.nms_threshold":    0.3,
	"detect.timeout":          "2s",

	"cycle.poll_interval": "200ms",
	"cycle.grace_delay":   "1s",
	"cycle.threshold":     0.1,
	"cycle.history_limit": 20,
	"cycle.display_count": 6,
	"cycle.stats_window":  10,

	"narrate.provider": ProviderLog,
	"narrate.voice":    "",
	"narrate.model":    "",
	"narrate.language": "en-US",
	"narrate.rate":     1.0,
	"narrate.phrase":   "You look %s",
	"narrate.queue":    4,
	"narrate.timeout":  "15s",

	"audio.player": "ffplay",

	"palette.file": "",
}

// Load reads configuration. An empty path searches ./moodcam.yaml and
// $HOME/.moodcam/moodcam.yaml and falls back to defaults when neither exists;
// an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("moodcam")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.moodcam")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that no component validates itself.
func (c *Config) Validate() error {
	var problems []string

	switch c.Narrate.Provider {
	case ProviderLog, ProviderOpenAI, ProviderGoogle, ProviderChain:
	default:
		problems = append(problems, fmt.Sprintf("narrate.provider must be log, openai, google or chain, got %q", c.Narrate.Provider))
	}
	if c.Cycle.PollInterval <= 0 {
		problems = append(problems, "cycle.poll_interval must be positive")
	}
	if c.Cycle.GraceDelay < 0 {
		problems = append(problems, "cycle.grace_delay must not be negative")
	}
	if c.Cycle.Threshold < 0 || c.Cycle.Threshold >= 1 {
		problems = append(problems, "cycle.threshold must be in [0, 1)")
	}
	if c.Cycle.HistoryLimit < 1 {
		problems = append(problems, "cycle.history_limit must be at least 1")
	}
	if c.Detect.Timeout <= 0 {
		problems = append(problems, "detect.timeout must be positive")
	}
	cam := c.CameraSettings()
	problems = append(problems, cam.Validate()...)

	if len(problems) > 0 {
		return fmt.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

// CameraSettings converts the camera section to a camera.Config.
func (c *Config) CameraSettings() camera.Config {
	return camera.Config{
		Kind:          c.Camera.Source,
		Device:        c.Camera.Device,
		Width:         c.Camera.Width,
		Height:        c.Camera.Height,
		Framerate:     c.Camera.FPS,
		Quality:       c.Camera.JPEGQuality,
		SignallingURL: c.Camera.SignallingURL,
		Producer:      c.Camera.Producer,
		MaxAge:        c.Camera.MaxAge,
	}
}

// DetectSettings converts the detect section to a detect.Config.
func (c *Config) DetectSettings() detect.Config {
	d := detect.DefaultConfig()
	d.FaceModel = c.Detect.FaceModel
	d.ExpressionModel = c.Detect.ExpressionModel
	d.InputSize = c.Detect.InputSize
	d.FaceScore = c.Detect.FaceScore
	d.NMSThreshold = c.Detect.NMSThreshold
	return d
}

// CycleSettings converts the cycle section to a cycle.Config.
func (c *Config) CycleSettings() cycle.Config {
	return cycle.Config{
		PollInterval:  c.Cycle.PollInterval,
		GraceDelay:    c.Cycle.GraceDelay,
		DetectTimeout: c.Detect.Timeout,
		Threshold:     c.Cycle.Threshold,
		HistoryLimit:  c.Cycle.HistoryLimit,
		DisplayCount:  c.Cycle.DisplayCount,
		StatsWindow:   c.Cycle.StatsWindow,
		Phrase:        c.Narrate.Phrase,
	}
}

// WebSettings converts the web section to a web.Config.
func (c *Config) WebSettings() web.Config {
	return web.Config{Port: c.Web.Port, StaticDir: c.Web.StaticDir}
}
