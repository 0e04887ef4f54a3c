package remote

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// Open logs in to the admin API and returns the backend.
// The API has no embedding cache or session storage.
func Open(ctx context.Context, cfg *config.Config) (*database.Backend, error) {
	client, err := NewClient(ctx, cfg.Remote.URL, cfg.Remote.Email, cfg.Remote.Password, 0)
	if err != nil {
		return nil, err
	}
	log.WithField("company", client.Company()).Info("logged in to attendance API")

	store := NewStore(client, cfg.Recognition.Location(), nil)
	return &database.Backend{
		Name:       BackendName,
		Attendance: store,
		Records:    store,
		Employees:  store,
		Settings:   store,
	}, nil
}
