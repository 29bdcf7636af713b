package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/desertthunder/queuetify/internal/models"
	"github.com/desertthunder/queuetify/internal/shared"
)

// Frame is an inbound client message, tagged by Type.
type Frame struct {
	Type     string `json:"type"`
	Query    string `json:"query,omitempty"`
	TrackID  string `json:"track_id,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}

// Frame types a client may send.
const (
	SearchFrame      = "Search"
	QueueFrame       = "Queue"
	VoteFrame        = "Vote"
	GetStateFrame    = "GetState"
	DevicesFrame     = "Devices"
	TransferFrame    = "Transfer"
	VotedTracksFrame = "VotedTracks"
)

// DecodeRequest parses one text frame into the engine request it asks for, stamped with the sender's ids.
func DecodeRequest(data []byte, sessionID, connectionID string) (models.Request, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	switch f.Type {
	case SearchFrame:
		return models.Search{SessionID: sessionID, ConnectionID: connectionID, Query: f.Query}, nil
	case QueueFrame:
		if strings.TrimSpace(f.TrackID) == "" {
			return nil, fmt.Errorf("%w: queue without track_id", shared.ErrInvalidInput)
		}
		return models.Queue{SessionID: sessionID, ConnectionID: connectionID, TrackID: f.TrackID}, nil
	case VoteFrame:
		if strings.TrimSpace(f.TrackID) == "" {
			return nil, fmt.Errorf("%w: vote without track_id", shared.ErrInvalidInput)
		}
		return models.Vote{SessionID: sessionID, ConnectionID: connectionID, TrackID: f.TrackID}, nil
	case GetStateFrame:
		return models.GetState{SessionID: sessionID, ConnectionID: connectionID}, nil
	case DevicesFrame:
		return models.Devices{SessionID: sessionID, ConnectionID: connectionID}, nil
	case TransferFrame:
		if strings.TrimSpace(f.DeviceID) == "" {
			return nil, fmt.Errorf("%w: transfer without device_id", shared.ErrInvalidInput)
		}
		return models.Transfer{SessionID: sessionID, ConnectionID: connectionID, DeviceID: f.DeviceID}, nil
	case VotedTracksFrame:
		return models.VotedTracks{SessionID: sessionID, ConnectionID: connectionID}, nil
	default:
		return nil, fmt.Errorf("%w: unknown frame type %q", shared.ErrInvalidInput, f.Type)
	}
}
