// package services defines the Player collaborator and implements it for the Spotify Web API
package services

import (
	"context"

	"github.com/desertthunder/queuetify/internal/models"
)

// Player is the external playback device and catalogue, bound to one session's credentials.
type Player interface {
	// Search returns at most limit catalogue tracks matching query in market.
	Search(ctx context.Context, query, market string, limit int) ([]models.Track, error)

	// CurrentPlayback reports what the device is playing. A nil result means nothing is playing.
	CurrentPlayback(ctx context.Context) (*models.Playback, error)

	// StartPlayback replaces playback with trackID. An empty deviceID targets the active device.
	StartPlayback(ctx context.Context, trackID, deviceID string) error

	// ResumePlayback resumes the paused item.
	ResumePlayback(ctx context.Context) error

	// AddToQueue appends trackID to the device's native queue.
	AddToQueue(ctx context.Context, trackID string) error

	// Devices lists the user's available devices.
	Devices(ctx context.Context) ([]models.Device, error)

	// TransferPlayback moves playback to deviceID.
	TransferPlayback(ctx context.Context, deviceID string) error

	// RefreshToken exchanges the refresh token for a new token set.
	RefreshToken(ctx context.Context) (*models.Credentials, error)

	// Tracks resolves track ids to metadata. Unknown ids are omitted.
	Tracks(ctx context.Context, ids []string) ([]models.Track, error)
}

// PlayerProvider builds a [Player] for a session's credentials.
type PlayerProvider interface {
	Player(creds models.Credentials) Player
}
