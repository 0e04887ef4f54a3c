package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone database for Location

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var (
	ErrInvalidBlinkThreshold = errors.New("blink threshold must be between 1 and 20")
	ErrInvalidCheckoutDelay  = errors.New("checkout delay must be between 1 and 60 minutes")
)

// Accepted ranges for operator-tunable settings.
const (
	MinBlinkThreshold   = 1
	MaxBlinkThreshold   = 20
	MinCheckoutDelayMin = 1
	MaxCheckoutDelayMin = 60
)

type Config struct {
	Server      ServerConfig
	Auth        AuthConfig
	Database    DatabaseConfig
	Remote      RemoteConfig
	Detector    DetectorConfig    `yaml:"detector"`
	Camera      CameraConfig      `yaml:"camera"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Logging     LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // CORS origins besides localhost
}

type AuthConfig struct {
	AdminPassword string // empty disables authentication on control routes
	SessionSecret string
}

type DatabaseConfig struct {
	Backend      string // postgres, mariadb or remote
	URL          string // PostgreSQL connection URL or MariaDB DSN
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type RemoteConfig struct {
	URL      string // base URL of the attendance admin API
	Email    string
	Password string
}

type DetectorConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-request timeout for the face service.
func (c *DetectorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type CameraConfig struct {
	Source string `yaml:"source"` // device index ("0") or stream URL / file path
	Type   string `yaml:"type"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
}

type RecognitionConfig struct {
	Company              string
	Tolerance            float64 `yaml:"tolerance"`
	DisplayThreshold     float64 `yaml:"display_threshold"`
	Scale                float64 `yaml:"scale"`
	EyeARThreshold       float64 `yaml:"eye_ar_threshold"`
	BlinkFrames          int     `yaml:"blink_frames"`
	BlinkThreshold       int     `yaml:"blink_threshold"`
	CheckoutDelayMinutes int     `yaml:"checkout_delay_minutes"`
	Timezone             string  `yaml:"timezone"`
	QueueSize            int     `yaml:"queue_size"`
	RetryAttempts        int     `yaml:"retry_attempts"`
	LoopIntervalMS       int     `yaml:"loop_interval_ms"`
	StopTimeoutSeconds   int     `yaml:"stop_timeout_seconds"`
}

// Location resolves the configured time zone, falling back to UTC.
func (c *RecognitionConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CheckoutDelay returns the checkout debounce window.
func (c *RecognitionConfig) CheckoutDelay() time.Duration {
	return time.Duration(c.CheckoutDelayMinutes) * time.Minute
}

type LoggingConfig struct {
	Level  string // logrus level name, default info
	Format string // json or text
}

// ValidateBlinkThreshold checks the number of blinks required for liveness.
func ValidateBlinkThreshold(n int) error {
	if n < MinBlinkThreshold || n > MaxBlinkThreshold {
		return fmt.Errorf("%w: got %d", ErrInvalidBlinkThreshold, n)
	}
	return nil
}

// ValidateCheckoutDelay checks the checkout debounce window in minutes.
func ValidateCheckoutDelay(minutes int) error {
	if minutes < MinCheckoutDelayMin || minutes > MaxCheckoutDelayMin {
		return fmt.Errorf("%w: got %d", ErrInvalidCheckoutDelay, minutes)
	}
	return nil
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envString returns the env var or the default when it is unset or blank.
func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated env var, dropping blank items.
func envList(key string) []string {
	var items []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func Load() *Config {
	var defaults Config
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	rec := defaults.Recognition
	cam := defaults.Camera
	det := defaults.Detector

	cfg := &Config{
		Server: ServerConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Auth: AuthConfig{
			AdminPassword: os.Getenv("ADMIN_PASSWORD"),
			SessionSecret: os.Getenv("WEB_SESSION_SECRET"),
		},
		Database: DatabaseConfig{
			Backend:      strings.ToLower(envString("DATABASE_BACKEND", "postgres")),
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Remote: RemoteConfig{
			URL:      os.Getenv("FRAS_API_URL"),
			Email:    os.Getenv("FRAS_API_EMAIL"),
			Password: os.Getenv("FRAS_API_PASSWORD"),
		},
		Detector: DetectorConfig{
			URL:            envString("DETECTOR_URL", det.URL),
			TimeoutSeconds: envInt("DETECTOR_TIMEOUT_SECONDS", det.TimeoutSeconds),
		},
		Camera: CameraConfig{
			Source: envString("CAMERA_SOURCE", cam.Source),
			Type:   envString("CAMERA_TYPE", cam.Type),
			Width:  envInt("CAMERA_WIDTH", cam.Width),
			Height: envInt("CAMERA_HEIGHT", cam.Height),
			FPS:    envInt("CAMERA_FPS", cam.FPS),
		},
		Recognition: RecognitionConfig{
			Company:              os.Getenv("COMPANY"),
			Tolerance:            envFloat("FACE_TOLERANCE", rec.Tolerance),
			DisplayThreshold:     envFloat("DISPLAY_CONFIDENCE", rec.DisplayThreshold),
			Scale:                envFloat("FRAME_SCALE", rec.Scale),
			EyeARThreshold:       envFloat("EYE_AR_THRESHOLD", rec.EyeARThreshold),
			BlinkFrames:          envInt("EYE_AR_CONSEC_FRAMES", rec.BlinkFrames),
			BlinkThreshold:       envInt("BLINK_THRESHOLD", rec.BlinkThreshold),
			CheckoutDelayMinutes: envInt("CHECKOUT_DELAY_MINUTES", rec.CheckoutDelayMinutes),
			Timezone:             envString("ATTENDANCE_TIMEZONE", rec.Timezone),
			QueueSize:            envInt("ATTENDANCE_QUEUE_SIZE", rec.QueueSize),
			RetryAttempts:        envInt("ATTENDANCE_RETRY_ATTEMPTS", rec.RetryAttempts),
			LoopIntervalMS:       envInt("LOOP_INTERVAL_MS", rec.LoopIntervalMS),
			StopTimeoutSeconds:   envInt("STOP_TIMEOUT_SECONDS", rec.StopTimeoutSeconds),
		},
		Logging: LoggingConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "text"),
		},
	}

	// Out-of-range values from the environment fall back to the defaults.
	if ValidateBlinkThreshold(cfg.Recognition.BlinkThreshold) != nil {
		cfg.Recognition.BlinkThreshold = rec.BlinkThreshold
	}
	if ValidateCheckoutDelay(cfg.Recognition.CheckoutDelayMinutes) != nil {
		cfg.Recognition.CheckoutDelayMinutes = rec.CheckoutDelayMinutes
	}
	return cfg
}
