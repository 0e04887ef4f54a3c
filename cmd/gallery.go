package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect and prepare the reference face gallery",
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the employee reference images of the configured company",
	RunE:  runGalleryList,
}

var galleryWarmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Precompute reference embeddings into the embedding cache",
	Long: `Encode every employee reference image with the face service and store the
embeddings in the backend's embedding cache, so that starting recognition does
not have to encode the whole gallery again.

Only backends with an embedding cache (postgres) are supported.

Examples:
  # Encode images that are not cached yet
  face-attendance gallery warm

  # Also drop cached embeddings of images that no longer exist
  face-attendance gallery warm --prune`,
	RunE: runGalleryWarm,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryListCmd)
	galleryCmd.AddCommand(galleryWarmCmd)

	galleryListCmd.Flags().Bool("json", false, "Output as JSON")

	galleryWarmCmd.Flags().Bool("prune", false, "Delete cached embeddings of images no longer in the gallery")
	galleryWarmCmd.Flags().Bool("json", false, "Output as JSON")
}

// GalleryImage describes one reference image
type GalleryImage struct {
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Company    string `json:"company,omitempty"`
	Bytes      int    `json:"bytes"`
	Hash       string `json:"hash"`
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	ctx := context.Background()
	cfg := config.Load()
	setupLogging(cmd, cfg)

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	images, err := backend.Employees.ListIdentitiesWithImages(ctx)
	if err != nil {
		return fmt.Errorf("listing employee images: %w", err)
	}

	out := make([]GalleryImage, 0, len(images))
	for i := range images {
		out = append(out, GalleryImage{
			EmployeeID: images[i].EmployeeID,
			Name:       images[i].Name,
			Company:    images[i].Company,
			Bytes:      len(images[i].Image),
			Hash:       images[i].ImageHash(),
		})
	}

	if jsonOutput {
		return outputJSON(out)
	}

	if len(out) == 0 {
		fmt.Println("No reference images found")
		return nil
	}
	fmt.Printf("%-12s %-30s %10s  %s\n", "EMPLOYEE", "NAME", "BYTES", "HASH")
	for _, img := range out {
		fmt.Printf("%-12s %-30s %10d  %s\n", img.EmployeeID, img.Name, img.Bytes, img.Hash[:12])
	}
	fmt.Printf("\n%d images\n", len(out))
	return nil
}

// embeddingPruner is implemented by caches that can drop stale embeddings
type embeddingPruner interface {
	PruneEmbeddings(ctx context.Context, keep []string) (int64, error)
}

// WarmResult represents the result of a gallery warm run
type WarmResult struct {
	Success       bool   `json:"success"`
	Images        int    `json:"images"`
	Encoded       int64  `json:"encoded"`
	Skipped       int64  `json:"skipped"`
	Cached        int    `json:"cached"`
	Pruned        int64  `json:"pruned"`
	DurationMs    int64  `json:"duration_ms"`
	DurationHuman string `json:"duration_human,omitempty"`
}

func runGalleryWarm(cmd *cobra.Command, args []string) error {
	prune := mustGetBool(cmd, "prune")
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	cfg := config.Load()
	setupLogging(cmd, cfg)
	startTime := time.Now()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	if backend.Embeddings == nil {
		return fmt.Errorf("the %s backend has no embedding cache", backend.Name)
	}

	faces := fingerprint.NewFaceClient(cfg.Detector.URL, cfg.Detector.Timeout())
	if err := faces.Ping(ctx); err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}

	images, err := backend.Employees.ListIdentitiesWithImages(ctx)
	if err != nil {
		return fmt.Errorf("listing employee images: %w", err)
	}
	if !jsonOutput {
		fmt.Printf("Found %d reference images\n", len(images))
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(images),
			progressbar.OptionSetDescription("Encoding gallery"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	// Encode one image per call so progress can be reported per image.
	// Failures are logged by EncodeGallery and counted as skipped.
	log := logrus.StandardLogger()
	var encoded, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.ReferenceEncodeConcurrency)
	for i := range images {
		img := images[i : i+1]
		g.Go(func() error {
			entries, err := recognition.EncodeGallery(gctx, faces, backend.Embeddings, img, log)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				skipped.Add(1)
			} else {
				encoded.Add(1)
			}
			if bar != nil {
				bar.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}

	result := WarmResult{
		Success: true,
		Images:  len(images),
		Encoded: encoded.Load(),
		Skipped: skipped.Load(),
	}

	if prune {
		pruned, err := pruneEmbeddings(ctx, backend.Embeddings, images)
		if err != nil {
			return err
		}
		result.Pruned = pruned
	}

	if result.Cached, err = backend.Embeddings.CountEmbeddings(ctx); err != nil {
		return fmt.Errorf("counting cached embeddings: %w", err)
	}

	duration := time.Since(startTime)
	result.DurationMs = duration.Milliseconds()
	result.DurationHuman = duration.Round(time.Millisecond).String()

	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Printf("Encoded:  %d\n", result.Encoded)
	fmt.Printf("Skipped:  %d (no usable face)\n", result.Skipped)
	if prune {
		fmt.Printf("Pruned:   %d\n", result.Pruned)
	}
	fmt.Printf("Cached:   %d embeddings\n", result.Cached)
	fmt.Printf("Duration: %s\n", result.DurationHuman)
	return nil
}

func pruneEmbeddings(ctx context.Context, cache database.EmbeddingCache, images []database.EmployeeImage) (int64, error) {
	pruner, ok := cache.(embeddingPruner)
	if !ok {
		return 0, errors.New("embedding cache does not support pruning")
	}
	keep := make([]string, 0, len(images))
	for i := range images {
		keep = append(keep, images[i].ImageHash())
	}
	pruned, err := pruner.PruneEmbeddings(ctx, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning embeddings: %w", err)
	}
	return pruned, nil
}
