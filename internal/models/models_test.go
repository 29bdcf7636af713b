package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSortQueue(t *testing.T) {
	entries := []QueueEntry{
		{TrackID: "a", Votes: 2, Sequence: 1},
		{TrackID: "b", Votes: 5, Sequence: 2},
		{TrackID: "c", Votes: 0, Sequence: 3},
		{TrackID: "d", Votes: 2, Sequence: 0},
	}

	SortQueue(entries)

	want := []string{"b", "d", "a", "c"}
	for i, id := range want {
		if entries[i].TrackID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, entries[i].TrackID)
		}
	}
}

func TestPlaybackRemaining(t *testing.T) {
	progress := 170 * time.Second

	tests := []struct {
		name     string
		playback *Playback
		want     time.Duration
		ok       bool
	}{
		{"nil playback", nil, 0, false},
		{"unresolvable item", &Playback{Progress: &progress}, 0, false},
		{"missing progress", &Playback{Item: &Track{Duration: 3 * time.Minute}}, 0, false},
		{"known", &Playback{Item: &Track{Duration: 3 * time.Minute}, Progress: &progress}, 10 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.playback.Remaining()
			if ok != tt.ok || got != tt.want {
				t.Errorf("Remaining() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCredentialsMarket(t *testing.T) {
	var nilCreds *Credentials
	if got := nilCreds.MarketOrDefault(); got != DefaultMarket {
		t.Errorf("expected %s for nil credentials, got %s", DefaultMarket, got)
	}
	if got := (&Credentials{Market: "SE"}).MarketOrDefault(); got != "SE" {
		t.Errorf("expected SE, got %s", got)
	}
}

func TestSessionValidate(t *testing.T) {
	if err := (&Session{}).Validate(); err == nil {
		t.Error("expected error for empty session")
	}
	if err := (&Session{ID: "s1"}).Validate(); err == nil {
		t.Error("expected error for missing access token")
	}
	s := &Session{ID: "s1", Credentials: Credentials{AccessToken: "tok"}}
	if err := s.Validate(); err != nil {
		t.Errorf("expected valid session, got %v", err)
	}
}

func TestEnvelope(t *testing.T) {
	t.Run("state update encodes empty queue as array", func(t *testing.T) {
		data, err := json.Marshal(NewStateUpdate(StateSnapshot{}))
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		got := string(data)
		if !strings.Contains(got, `"type":"StateUpdate"`) {
			t.Errorf("missing type tag: %s", got)
		}
		if !strings.Contains(got, `"queue":[]`) || !strings.Contains(got, `"current_track":null`) {
			t.Errorf("unexpected payload: %s", got)
		}
	})

	t.Run("shutdown has no payload", func(t *testing.T) {
		data, err := json.Marshal(NewShutdown())
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if string(data) != `{"type":"Shutdown"}` {
			t.Errorf("unexpected shutdown encoding: %s", data)
		}
	})

	t.Run("track info projection", func(t *testing.T) {
		info := Track{ID: "t1", Name: "Song", Duration: time.Minute}.Info()
		data, _ := json.Marshal(NewSearchResult([]TrackInfo{info}))
		want := `{"type":"SearchResult","payload":[{"id":"t1","name":"Song","artists":[]}]}`
		if string(data) != want {
			t.Errorf("expected %s, got %s", want, data)
		}
	})
}
