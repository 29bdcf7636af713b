// package models defines the data model for the queuetify session service
package models

import (
	"fmt"
	"sort"
	"time"
)

// DefaultMarket asks Spotify to resolve the market from the access token's user.
const DefaultMarket = "from_token"

// Credentials is one session's Spotify token set.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	Market       string
}

// MarketOrDefault returns the stored market, falling back to [DefaultMarket].
func (c *Credentials) MarketOrDefault() string {
	if c == nil || c.Market == "" {
		return DefaultMarket
	}
	return c.Market
}

// Session is one shared playback party.
type Session struct {
	ID           string
	Credentials  Credentials
	DeviceID     string
	CurrentTrack string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// HostTokenHash is the SHA-256 of the token handed to the session's creator. Empty means nobody can kill it over HTTP.
	HostTokenHash string
}

// Validate checks the fields required to persist a session.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if s.Credentials.AccessToken == "" {
		return fmt.Errorf("access token is required")
	}
	return nil
}

// SessionSummary is a listing row for administrative output.
type SessionSummary struct {
	ID           string    `json:"id"`
	CurrentTrack string    `json:"current_track,omitempty"`
	QueueLength  int       `json:"queue_length"`
	CreatedAt    time.Time `json:"created_at"`
}

// QueueEntry is a queued track in a session.
//
// Sequence is the insertion order and breaks ties between equal vote counts.
type QueueEntry struct {
	SessionID string    `db:"session_id"`
	TrackID   string    `db:"track_id"`
	Votes     int       `db:"votes"`
	Sequence  int       `db:"sequence"`
	QueuedAt  time.Time `db:"queued_at"`
}

// SortQueue orders entries by descending votes, earliest-queued first among equals.
func SortQueue(entries []QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Votes != entries[j].Votes {
			return entries[i].Votes > entries[j].Votes
		}
		return entries[i].Sequence < entries[j].Sequence
	})
}

// Track is a catalogue track as reported by the Player.
type Track struct {
	ID       string
	Name     string
	Artists  []string
	Duration time.Duration
	URI      string
}

// Info projects the track for clients.
func (t Track) Info() TrackInfo {
	artists := t.Artists
	if artists == nil {
		artists = []string{}
	}
	return TrackInfo{ID: t.ID, Name: t.Name, Artists: artists}
}

// TrackInfo is the client-facing projection of a track.
type TrackInfo struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Artists []string `json:"artists"`
	Votes   int      `json:"votes,omitempty"`
}

// StateSnapshot is the current track plus the ordered queue, broadcast after every mutation.
type StateSnapshot struct {
	CurrentTrack *TrackInfo  `json:"current_track"`
	Queue        []TrackInfo `json:"queue"`
}

// Playback is the Player's live report.
//
// A nil Item means the playing item could not be resolved to a track; a nil Progress means the Player did not report one.
type Playback struct {
	Item      *Track
	IsPlaying bool
	Progress  *time.Duration
}

// Remaining returns the time left in the playing item, and false when it cannot be computed.
func (p *Playback) Remaining() (time.Duration, bool) {
	if p == nil || p.Item == nil || p.Progress == nil {
		return 0, false
	}
	return p.Item.Duration - *p.Progress, true
}

// Device is a Spotify Connect device.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsActive bool   `json:"is_active,omitempty"`
}
