package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
)

func newServeTestCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "serve"}
	addServeFlags(c)
	require.NoError(t, c.Flags().Parse(args))
	return c
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "0.0.0.0", Port: 8080},
		Camera: config.CameraConfig{Source: "0", Type: "webcam"},
		Recognition: config.RecognitionConfig{
			Company:        "acme",
			BlinkThreshold: 5,
		},
	}
}

func TestApplyServeFlags(t *testing.T) {
	cfg := testConfig()
	applyServeFlags(newServeTestCmd(t, "--port", "9090", "--camera", "rtsp://cam/1"), cfg)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "rtsp://cam/1", cfg.Camera.Source)
	assert.Len(t, cfg.Auth.SessionSecret, 64, "a random session secret is generated")
}

func TestApplyServeFlags_KeepsSessionSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.SessionSecret = "configured"
	applyServeFlags(newServeTestCmd(t), cfg)

	assert.Equal(t, "configured", cfg.Auth.SessionSecret)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestSeedFromSettings(t *testing.T) {
	settings := mock.NewMockSettingsStore()
	require.NoError(t, settings.SaveCameraSettings(context.Background(), &database.CameraSettings{
		Company:        "acme",
		CameraType:     "ip",
		CameraSource:   "http://10.0.0.5/stream",
		BlinkThreshold: 8,
	}))

	t.Run("stored values apply", func(t *testing.T) {
		cfg := testConfig()
		seedFromSettings(context.Background(), newServeTestCmd(t), cfg, settings)

		assert.Equal(t, "http://10.0.0.5/stream", cfg.Camera.Source)
		assert.Equal(t, "ip", cfg.Camera.Type)
		assert.Equal(t, 8, cfg.Recognition.BlinkThreshold)
	})

	t.Run("camera flag wins", func(t *testing.T) {
		cfg := testConfig()
		cmd := newServeTestCmd(t, "--camera", "2")
		applyServeFlags(cmd, cfg)
		seedFromSettings(context.Background(), cmd, cfg, settings)

		assert.Equal(t, "2", cfg.Camera.Source)
		assert.Equal(t, 8, cfg.Recognition.BlinkThreshold)
	})

	t.Run("other company", func(t *testing.T) {
		cfg := testConfig()
		cfg.Recognition.Company = "globex"
		seedFromSettings(context.Background(), newServeTestCmd(t), cfg, settings)

		assert.Equal(t, "0", cfg.Camera.Source)
		assert.Equal(t, 5, cfg.Recognition.BlinkThreshold)
	})

	t.Run("out of range threshold ignored", func(t *testing.T) {
		bad := mock.NewMockSettingsStore()
		require.NoError(t, bad.SaveCameraSettings(context.Background(), &database.CameraSettings{Company: "acme", BlinkThreshold: 50}))

		cfg := testConfig()
		seedFromSettings(context.Background(), newServeTestCmd(t), cfg, bad)
		assert.Equal(t, 5, cfg.Recognition.BlinkThreshold)
	})

	t.Run("store error keeps configuration", func(t *testing.T) {
		failing := mock.NewMockSettingsStore()
		failing.GetError = errors.New("timeout")

		cfg := testConfig()
		seedFromSettings(context.Background(), newServeTestCmd(t), cfg, failing)
		assert.Equal(t, "0", cfg.Camera.Source)
	})

	t.Run("no store", func(t *testing.T) {
		cfg := testConfig()
		seedFromSettings(context.Background(), newServeTestCmd(t), cfg, nil)
		assert.Equal(t, 5, cfg.Recognition.BlinkThreshold)
	})
}
