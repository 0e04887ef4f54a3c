package recognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// loadGallery encodes every reference image into a new gallery. Images that
// yield no embedding are skipped.
func (s *Service) loadGallery(ctx context.Context) (*facematch.Gallery, error) {
	images, err := s.employees.ListIdentitiesWithImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing employee images: %w", err)
	}

	entries, err := EncodeGallery(ctx, s.faces, s.cache, images, s.log)
	if err != nil {
		return nil, err
	}

	gallery := facematch.NewGallery()
	if err := gallery.Load(entries); err != nil {
		return nil, fmt.Errorf("loading gallery from %d images: %w", len(images), err)
	}
	s.log.WithFields(logrus.Fields{
		"images":     len(images),
		"embeddings": gallery.Len(),
		"identities": gallery.Identities(),
	}).Info("gallery loaded")
	return gallery, nil
}

// EncodeGallery computes the reference embedding of every image with bounded
// parallelism, using cache (when not nil) to skip images encoded before.
// The result keeps the order of images; images without a usable face are left out.
func EncodeGallery(ctx context.Context, faces FaceService, cache database.EmbeddingCache, images []database.EmployeeImage, log logrus.FieldLogger) ([]facematch.GalleryEntry, error) {
	encoded := make([][]float32, len(images))
	model := faces.Model()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.ReferenceEncodeConcurrency)

	for i := range images {
		img := &images[i]
		g.Go(func() error {
			emb, err := referenceEmbedding(gctx, faces, cache, img, model, log)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				log.WithError(err).WithFields(logrus.Fields{
					"employee_id": img.EmployeeID,
					"name":        img.Name,
				}).Warn("skipping reference image")
				return nil
			}
			encoded[i] = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("encoding reference images: %w", err)
	}

	entries := make([]facematch.GalleryEntry, 0, len(images))
	for i, emb := range encoded {
		if len(emb) == 0 {
			continue
		}
		entries = append(entries, facematch.GalleryEntry{
			Identity:   images[i].Name,
			EmployeeID: images[i].EmployeeID,
			Embedding:  emb,
		})
	}
	return entries, nil
}

func referenceEmbedding(ctx context.Context, faces FaceService, cache database.EmbeddingCache, img *database.EmployeeImage, model string, log logrus.FieldLogger) ([]float32, error) {
	hash := img.ImageHash()
	if cache != nil {
		emb, err := cache.GetEmbedding(ctx, img.EmployeeID, hash, model)
		if err != nil {
			log.WithError(err).Debug("embedding cache lookup failed")
		} else if len(emb) > 0 {
			return emb, nil
		}
	}

	emb, err := faces.EncodeReference(ctx, img.Image)
	if err != nil {
		return nil, err
	}

	if cache != nil {
		err := cache.SaveEmbedding(ctx, database.StoredEmbedding{
			EmployeeID: img.EmployeeID,
			ImageHash:  hash,
			Model:      model,
			Embedding:  emb,
		})
		if err != nil {
			log.WithError(err).Debug("caching reference embedding failed")
		}
	}
	return emb, nil
}
