package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/capture"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recognition engine and its HTTP API",
	Long: `Start the Face Attendance web server.

The recognition loop stays idle until it is started with
POST /api/v1/recognition/start (or from the dashboard, or with --autostart).`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServeFlags(serveCmd)
}

func addServeFlags(c *cobra.Command) {
	c.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	c.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	c.Flags().String("camera", "", "Camera descriptor: device index, file path or stream URL (overrides CAMERA_SOURCE)")
	c.Flags().Bool("autostart", false, "Start recognition immediately")
	c.Flags().Bool("preview", false, "Show a local preview window when autostarting")
	c.Flags().Bool("enhance", true, "Equalize frame contrast before detection")
}

// applyServeFlags lets explicit flags win over the environment.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Server.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Server.Host = host
	}
	if camera := mustGetString(cmd, "camera"); camera != "" {
		cfg.Camera.Source = camera
	}
	if cfg.Auth.SessionSecret == "" {
		cfg.Auth.SessionSecret = randomSecret()
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("reading random secret: %v", err))
	}
	return hex.EncodeToString(b)
}

// seedFromSettings applies the company's stored camera settings on top of the
// configuration. Explicit flags keep precedence over stored values.
func seedFromSettings(ctx context.Context, cmd *cobra.Command, cfg *config.Config, settings database.SettingsStore) {
	if settings == nil || cfg.Recognition.Company == "" {
		return
	}
	stored, err := settings.GetCameraSettings(ctx, cfg.Recognition.Company)
	if err != nil {
		logrus.WithError(err).Warn("loading camera settings, using configuration")
		return
	}
	if stored == nil {
		return
	}

	if stored.CameraSource != "" && mustGetString(cmd, "camera") == "" {
		cfg.Camera.Source = stored.CameraSource
	}
	if stored.CameraType != "" {
		cfg.Camera.Type = stored.CameraType
	}
	if config.ValidateBlinkThreshold(stored.BlinkThreshold) == nil {
		cfg.Recognition.BlinkThreshold = stored.BlinkThreshold
	}
	logrus.WithFields(logrus.Fields{
		"company":         stored.Company,
		"camera":          cfg.Camera.Source,
		"blink_threshold": cfg.Recognition.BlinkThreshold,
	}).Info("camera settings loaded")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	setupLogging(cmd, cfg)
	applyServeFlags(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("Opening %s backend...\n", cfg.Database.Backend)
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	seedFromSettings(ctx, cmd, cfg, backend.Settings)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	faces := fingerprint.NewFaceClient(cfg.Detector.URL, cfg.Detector.Timeout())
	opener := capture.NewOpener(capture.Settings{
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
		FPS:    cfg.Camera.FPS,
	})

	deps := recognition.Deps{
		Faces: faces,
		Cameras: recognition.SourceOpenerFunc(func(descriptor string) (recognition.Source, error) {
			cam, err := opener.Open(descriptor)
			if err != nil {
				return nil, err
			}
			return cam, nil
		}),
		NewPreview: func() recognition.Preview { return capture.NewPreview("Face Attendance") },
		Employees:  backend.Employees,
		Attendance: backend.Attendance,
		Settings:   backend.Settings,
		Embeddings: backend.Embeddings,
		Metrics:    recognition.NewMetrics(reg),
		Logger:     logrus.StandardLogger(),
	}
	if mustGetBool(cmd, "enhance") {
		enhancer := capture.NewEnhancer()
		defer enhancer.Close()
		deps.Enhancer = enhancer
	}

	service := recognition.New(recognition.OptionsFromConfig(cfg), deps)

	server := web.NewServer(cfg, web.Deps{
		Recognition: service,
		Frames:      service.Publisher(),
		Records:     backend.Records,
		Sessions:    backend.Sessions,
		Gatherer:    reg,
	})

	if mustGetBool(cmd, "autostart") {
		if err := service.Start(ctx, recognition.StartOptions{ShowPreview: mustGetBool(cmd, "preview")}); err != nil {
			return fmt.Errorf("starting recognition: %w", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		if err := service.Stop(); err != nil && !errors.Is(err, recognition.ErrNotRunning) {
			logrus.WithError(err).Warn("stopping recognition")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Attendance on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	if cfg.Auth.AdminPassword == "" {
		fmt.Println("Warning: ADMIN_PASSWORD is not set, control endpoints are open")
	}
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
