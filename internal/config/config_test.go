package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad_RecognitionDefaults(t *testing.T) {
	t.Setenv("BLINK_THRESHOLD", "")
	t.Setenv("CHECKOUT_DELAY_MINUTES", "")
	t.Setenv("FACE_TOLERANCE", "")

	cfg := Load()

	if cfg.Recognition.BlinkThreshold != 5 {
		t.Errorf("expected default blink threshold 5, got %d", cfg.Recognition.BlinkThreshold)
	}
	if cfg.Recognition.CheckoutDelayMinutes != 2 {
		t.Errorf("expected default checkout delay 2, got %d", cfg.Recognition.CheckoutDelayMinutes)
	}
	if cfg.Recognition.Tolerance != 0.6 {
		t.Errorf("expected default tolerance 0.6, got %f", cfg.Recognition.Tolerance)
	}
	if cfg.Recognition.DisplayThreshold != 0.4 {
		t.Errorf("expected default display threshold 0.4, got %f", cfg.Recognition.DisplayThreshold)
	}
	if cfg.Recognition.Scale != 0.25 {
		t.Errorf("expected default scale 0.25, got %f", cfg.Recognition.Scale)
	}
	if cfg.Recognition.BlinkFrames != 3 {
		t.Errorf("expected default blink frames 3, got %d", cfg.Recognition.BlinkFrames)
	}
}

func TestLoad_CameraDefaults(t *testing.T) {
	t.Setenv("CAMERA_SOURCE", "")
	t.Setenv("CAMERA_WIDTH", "")

	cfg := Load()

	if cfg.Camera.Source != "0" {
		t.Errorf("expected default camera source '0', got '%s'", cfg.Camera.Source)
	}
	if cfg.Camera.Width != 1280 || cfg.Camera.Height != 720 {
		t.Errorf("expected 1280x720, got %dx%d", cfg.Camera.Width, cfg.Camera.Height)
	}
}

func TestLoad_CustomBlinkThreshold(t *testing.T) {
	t.Setenv("BLINK_THRESHOLD", "3")

	cfg := Load()

	if cfg.Recognition.BlinkThreshold != 3 {
		t.Errorf("expected blink threshold 3, got %d", cfg.Recognition.BlinkThreshold)
	}
}

func TestLoad_OutOfRangeBlinkThreshold(t *testing.T) {
	t.Setenv("BLINK_THRESHOLD", "50")

	cfg := Load()

	// Should fall back to default
	if cfg.Recognition.BlinkThreshold != 5 {
		t.Errorf("expected default blink threshold for out of range input, got %d", cfg.Recognition.BlinkThreshold)
	}
}

func TestLoad_InvalidCheckoutDelay(t *testing.T) {
	t.Setenv("CHECKOUT_DELAY_MINUTES", "invalid")

	cfg := Load()

	if cfg.Recognition.CheckoutDelayMinutes != 2 {
		t.Errorf("expected default checkout delay for invalid input, got %d", cfg.Recognition.CheckoutDelayMinutes)
	}
	if cfg.Recognition.CheckoutDelay() != 2*time.Minute {
		t.Errorf("expected 2m, got %s", cfg.Recognition.CheckoutDelay())
	}
}

func TestLoad_DatabaseBackend(t *testing.T) {
	t.Setenv("DATABASE_BACKEND", "MariaDB")
	t.Setenv("DATABASE_URL", "user:pass@tcp(localhost:3306)/fras")

	cfg := Load()

	if cfg.Database.Backend != "mariadb" {
		t.Errorf("expected backend 'mariadb', got '%s'", cfg.Database.Backend)
	}
	if cfg.Database.URL != "user:pass@tcp(localhost:3306)/fras" {
		t.Errorf("unexpected database URL '%s'", cfg.Database.URL)
	}
}

func TestLoad_DefaultBackend(t *testing.T) {
	t.Setenv("DATABASE_BACKEND", "")

	cfg := Load()

	if cfg.Database.Backend != "postgres" {
		t.Errorf("expected default backend 'postgres', got '%s'", cfg.Database.Backend)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected 25 max open conns, got %d", cfg.Database.MaxOpenConns)
	}
}

func TestLoad_RemoteConfig(t *testing.T) {
	t.Setenv("FRAS_API_URL", "https://fras.example.com/api")
	t.Setenv("FRAS_API_EMAIL", "admin@example.com")
	t.Setenv("FRAS_API_PASSWORD", "secret")

	cfg := Load()

	if cfg.Remote.URL != "https://fras.example.com/api" {
		t.Errorf("unexpected remote URL '%s'", cfg.Remote.URL)
	}
	if cfg.Remote.Email != "admin@example.com" {
		t.Errorf("unexpected remote email '%s'", cfg.Remote.Email)
	}
	if cfg.Remote.Password != "secret" {
		t.Error("expected remote password to be loaded")
	}
}

func TestLocation(t *testing.T) {
	cfg := RecognitionConfig{Timezone: "Africa/Kigali"}
	if got := cfg.Location().String(); got != "Africa/Kigali" {
		t.Errorf("expected Africa/Kigali, got %s", got)
	}

	cfg.Timezone = "Not/AZone"
	if cfg.Location() != time.UTC {
		t.Error("expected UTC fallback for unknown zone")
	}
}

func TestDetectorTimeout(t *testing.T) {
	cfg := DetectorConfig{TimeoutSeconds: 7}
	if cfg.Timeout() != 7*time.Second {
		t.Errorf("expected 7s, got %s", cfg.Timeout())
	}
}

func TestValidateBlinkThreshold(t *testing.T) {
	tests := []struct {
		value   int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{5, false},
		{20, false},
		{21, true},
		{-3, true},
	}

	for _, tt := range tests {
		err := ValidateBlinkThreshold(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateBlinkThreshold(%d) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidBlinkThreshold) {
			t.Errorf("expected ErrInvalidBlinkThreshold, got %v", err)
		}
	}
}

func TestValidateCheckoutDelay(t *testing.T) {
	tests := []struct {
		value   int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{2, false},
		{60, false},
		{61, true},
	}

	for _, tt := range tests {
		err := ValidateCheckoutDelay(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateCheckoutDelay(%d) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidCheckoutDelay) {
			t.Errorf("expected ErrInvalidCheckoutDelay, got %v", err)
		}
	}
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://kiosk.example.com, ,https://admin.example.com")

	cfg := Load()

	want := []string{"https://kiosk.example.com", "https://admin.example.com"}
	if len(cfg.Server.AllowedOrigins) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.Server.AllowedOrigins)
	}
	for i := range want {
		if cfg.Server.AllowedOrigins[i] != want[i] {
			t.Errorf("origin %d: expected %s, got %s", i, want[i], cfg.Server.AllowedOrigins[i])
		}
	}
}
