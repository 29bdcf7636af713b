package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/queuetify/internal/models"
	"github.com/desertthunder/queuetify/internal/shared"
)

func newTestService(t *testing.T, handler http.Handler) *SpotifyService {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	srv, err := NewSpotifyService(SpotifyOptions{
		ClientID:     "test_client_id",
		ClientSecret: "test_client_secret",
		RedirectURI:  "http://127.0.0.1:3000/callback",
		APIBaseURL:   server.URL + "/v1",
		TokenURL:     server.URL + "/api/token",
		HTTPClient:   server.Client(),
		Logger:       log.New(io.Discard),
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	srv.backoff = time.Millisecond
	return srv
}

func testPlayer(srv *SpotifyService) *SpotifyPlayer {
	return srv.newPlayer(models.Credentials{AccessToken: "access", RefreshToken: "refresh", Market: "SE"})
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func trackJSON(id, name string, durationMS int, artists ...string) map[string]any {
	as := make([]map[string]string, len(artists))
	for i, a := range artists {
		as[i] = map[string]string{"id": "artist-" + a, "name": a}
	}
	var idValue any
	if id != "" {
		idValue = id
	}
	return map[string]any{
		"id":          idValue,
		"name":        name,
		"artists":     as,
		"duration_ms": durationMS,
		"uri":         "spotify:track:" + id,
	}
}

func TestNewSpotifyService(t *testing.T) {
	tests := []struct {
		name    string
		opts    SpotifyOptions
		wantErr bool
	}{
		{"valid", SpotifyOptions{ClientID: "id", ClientSecret: "secret"}, false},
		{"missing client id", SpotifyOptions{ClientSecret: "secret"}, true},
		{"missing client secret", SpotifyOptions{ClientID: "id"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := NewSpotifyService(tt.opts)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrMissingCredentials) {
					t.Errorf("expected ErrMissingCredentials, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.baseURL != DefaultAPIBaseURL {
				t.Errorf("expected default base URL, got %s", srv.baseURL)
			}
		})
	}
}

func TestSpotifyService(t *testing.T) {
	t.Run("AuthURL", func(t *testing.T) {
		srv, err := NewSpotifyService(SpotifyOptions{ClientID: "test_client_id", ClientSecret: "secret", RedirectURI: "http://127.0.0.1:3000/callback"})
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		authURL := srv.AuthURL("test_state")
		for _, want := range []string{"accounts.spotify.com", "test_client_id", "test_state", "user-modify-playback-state"} {
			if !strings.Contains(authURL, want) {
				t.Errorf("auth URL %q should contain %q", authURL, want)
			}
		}
	})

	t.Run("Exchange", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			if r.Form.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				writeJSON(t, w, map[string]string{"error": "invalid_grant"})
				return
			}
			writeJSON(t, w, map[string]any{
				"access_token":  "new-access",
				"refresh_token": "new-refresh",
				"token_type":    "Bearer",
				"expires_in":    3600,
			})
		})
		srv := newTestService(t, mux)

		creds, err := srv.Exchange(context.Background(), "good-code")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if creds.AccessToken != "new-access" || creds.RefreshToken != "new-refresh" {
			t.Errorf("unexpected credentials: %+v", creds)
		}
		if creds.Expiry.IsZero() {
			t.Error("expected expiry to be set")
		}

		if _, err := srv.Exchange(context.Background(), "bad-code"); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
		if _, err := srv.Exchange(context.Background(), ""); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed for empty code, got %v", err)
		}
	})

	t.Run("UserProfile", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/me", func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer access" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(t, w, map[string]string{"id": "host", "country": "SE"})
		})
		srv := newTestService(t, mux)

		user, err := srv.UserProfile(context.Background(), models.Credentials{AccessToken: "access"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if user.Country != "SE" {
			t.Errorf("expected country SE, got %s", user.Country)
		}

		_, err = srv.UserProfile(context.Background(), models.Credentials{AccessToken: "wrong"})
		if !errors.Is(err, shared.ErrNotAuthenticated) || !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrNotAuthenticated and ErrAPIRequest, got %v", err)
		}
	})
}

func TestSpotifyPlayer(t *testing.T) {
	ctx := context.Background()

	t.Run("Search", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("q") != "daft punk" || q.Get("type") != "track" || q.Get("market") != "SE" || q.Get("limit") != "10" {
				t.Errorf("unexpected query: %s", r.URL.RawQuery)
			}
			writeJSON(t, w, map[string]any{
				"tracks": map[string]any{
					"items": []any{
						trackJSON("t1", "One More Time", 320000, "Daft Punk"),
						trackJSON("", "Local File", 1000),
						trackJSON("t2", "Aerodynamic", 212000, "Daft Punk"),
					},
				},
			})
		})
		player := testPlayer(newTestService(t, mux))

		tracks, err := player.Search(ctx, "daft punk", "SE", 10)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 2 {
			t.Fatalf("expected 2 tracks with ids, got %d", len(tracks))
		}
		if tracks[0].ID != "t1" || tracks[0].Artists[0] != "Daft Punk" {
			t.Errorf("unexpected first track: %+v", tracks[0])
		}
		if tracks[0].Duration != 320*time.Second {
			t.Errorf("expected 320s duration, got %v", tracks[0].Duration)
		}
	})

	t.Run("Search with blank query", func(t *testing.T) {
		player := testPlayer(newTestService(t, http.NotFoundHandler()))
		tracks, err := player.Search(ctx, "  ", "SE", 10)
		if err != nil || len(tracks) != 0 {
			t.Errorf("expected empty result, got %v %v", tracks, err)
		}
	})

	t.Run("CurrentPlayback", func(t *testing.T) {
		tests := []struct {
			name  string
			write func(w http.ResponseWriter)
			check func(t *testing.T, p *models.Playback)
		}{
			{
				name:  "nothing playing",
				write: func(w http.ResponseWriter) { w.WriteHeader(http.StatusNoContent) },
				check: func(t *testing.T, p *models.Playback) {
					if p != nil {
						t.Errorf("expected nil playback, got %+v", p)
					}
				},
			},
			{
				name: "playing track",
				write: func(w http.ResponseWriter) {
					writeJSON(t, w, map[string]any{
						"is_playing":  true,
						"progress_ms": 1000,
						"item":        trackJSON("t1", "One More Time", 5000, "Daft Punk"),
					})
				},
				check: func(t *testing.T, p *models.Playback) {
					if p == nil || p.Item == nil || p.Item.ID != "t1" || !p.IsPlaying {
						t.Fatalf("unexpected playback: %+v", p)
					}
					remaining, ok := p.Remaining()
					if !ok || remaining != 4*time.Second {
						t.Errorf("expected 4s remaining, got %v %v", remaining, ok)
					}
				},
			},
			{
				name: "missing progress and item",
				write: func(w http.ResponseWriter) {
					writeJSON(t, w, map[string]any{"is_playing": false, "progress_ms": nil, "item": nil})
				},
				check: func(t *testing.T, p *models.Playback) {
					if p == nil {
						t.Fatal("expected playback")
					}
					if p.Item != nil || p.Progress != nil {
						t.Errorf("expected nil item and progress, got %+v", p)
					}
				},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				mux := http.NewServeMux()
				mux.HandleFunc("/v1/me/player", func(w http.ResponseWriter, r *http.Request) { tt.write(w) })
				player := testPlayer(newTestService(t, mux))

				playback, err := player.CurrentPlayback(ctx)
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				tt.check(t, playback)
			})
		}
	})

	t.Run("StartPlayback", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/me/player/play", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut {
				t.Errorf("expected PUT, got %s", r.Method)
			}
			if r.URL.Query().Get("device_id") != "dev-1" {
				t.Errorf("expected device_id dev-1, got %s", r.URL.RawQuery)
			}
			var body struct {
				URIs []string `json:"uris"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if len(body.URIs) != 1 || body.URIs[0] != "spotify:track:t1" {
				t.Errorf("unexpected uris: %v", body.URIs)
			}
			w.WriteHeader(http.StatusNoContent)
		})
		player := testPlayer(newTestService(t, mux))

		if err := player.StartPlayback(ctx, "t1", "dev-1"); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("AddToQueue", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/me/player/queue", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Query().Get("uri") != "spotify:track:t2" {
				t.Errorf("unexpected request: %s %s", r.Method, r.URL.RawQuery)
			}
			w.WriteHeader(http.StatusNoContent)
		})
		player := testPlayer(newTestService(t, mux))

		if err := player.AddToQueue(ctx, "t2"); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("Devices", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/me/player/devices", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{
				"devices": []any{
					map[string]any{"id": "dev-1", "name": "Kitchen", "type": "Speaker", "is_active": true},
					map[string]any{"id": nil, "name": "Restricted", "type": "TV"},
				},
			})
		})
		player := testPlayer(newTestService(t, mux))

		devices, err := player.Devices(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(devices) != 1 || devices[0].ID != "dev-1" || !devices[0].IsActive {
			t.Errorf("unexpected devices: %+v", devices)
		}
	})

	t.Run("TransferPlayback", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/me/player", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				DeviceIDs []string `json:"device_ids"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if r.Method != http.MethodPut || len(body.DeviceIDs) != 1 || body.DeviceIDs[0] != "dev-2" {
				t.Errorf("unexpected transfer request: %s %v", r.Method, body.DeviceIDs)
			}
			w.WriteHeader(http.StatusNoContent)
		})
		player := testPlayer(newTestService(t, mux))

		if err := player.TransferPlayback(ctx, "dev-2"); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if err := player.TransferPlayback(ctx, ""); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Tracks batches ids and skips unknown", func(t *testing.T) {
		var calls atomic.Int32
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/tracks", func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			ids := strings.Split(r.URL.Query().Get("ids"), ",")
			if len(ids) > maxTracksPerRequest {
				t.Errorf("batch too large: %d", len(ids))
			}
			items := make([]any, len(ids))
			for i, id := range ids {
				if id == "unknown" {
					continue
				}
				items[i] = trackJSON(id, "Track "+id, 1000, "Artist")
			}
			writeJSON(t, w, map[string]any{"tracks": items})
		})
		player := testPlayer(newTestService(t, mux))

		ids := make([]string, 0, 60)
		for i := range 59 {
			ids = append(ids, fmt.Sprintf("t%d", i))
		}
		ids = append(ids, "unknown")

		tracks, err := player.Tracks(ctx, ids)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 59 {
			t.Errorf("expected 59 tracks, got %d", len(tracks))
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 batched calls, got %d", calls.Load())
		}
	})

	t.Run("RefreshToken", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "refresh" {
				w.WriteHeader(http.StatusBadRequest)
				writeJSON(t, w, map[string]string{"error": "invalid_grant"})
				return
			}
			writeJSON(t, w, map[string]any{"access_token": "rotated", "token_type": "Bearer", "expires_in": 3600})
		})
		srv := newTestService(t, mux)
		player := testPlayer(srv)

		creds, err := player.RefreshToken(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if creds.AccessToken != "rotated" {
			t.Errorf("expected rotated access token, got %s", creds.AccessToken)
		}
		if creds.RefreshToken != "refresh" || creds.Market != "SE" {
			t.Errorf("expected refresh token and market to carry over, got %+v", creds)
		}

		bad := srv.newPlayer(models.Credentials{AccessToken: "a", RefreshToken: "revoked"})
		if _, err := bad.RefreshToken(ctx); !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}

		none := srv.newPlayer(models.Credentials{AccessToken: "a"})
		if _, err := none.RefreshToken(ctx); !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
	})
}

func TestDoRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/me/player/devices", func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			writeJSON(t, w, map[string]any{"devices": []any{}})
		})
		player := testPlayer(newTestService(t, mux))

		if _, err := player.Devices(ctx); err != nil {
			t.Fatalf("expected success on third attempt, got %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("expected 3 attempts, got %d", calls.Load())
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		var calls atomic.Int32
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/me/player/devices", func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
			writeJSON(t, w, map[string]any{"error": map[string]any{"status": 429, "message": "slow down"}})
		})
		player := testPlayer(newTestService(t, mux))

		_, err := player.Devices(ctx)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if apiErr.Status != http.StatusTooManyRequests || apiErr.Message != "slow down" {
			t.Errorf("unexpected API error: %+v", apiErr)
		}
		if calls.Load() != maxAttempts {
			t.Errorf("expected %d attempts, got %d", maxAttempts, calls.Load())
		}
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/me/player/play", func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusForbidden)
			writeJSON(t, w, map[string]any{"error": map[string]any{"status": 403, "message": "Premium required"}})
		})
		player := testPlayer(newTestService(t, mux))

		err := player.ResumePlayback(ctx)
		if !errors.Is(err, shared.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("expected 1 attempt, got %d", calls.Load())
		}
	})

	t.Run("requires access token", func(t *testing.T) {
		srv := newTestService(t, http.NotFoundHandler())
		player := srv.newPlayer(models.Credentials{})
		if err := player.ResumePlayback(ctx); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", time.Second},
		{"2", 2 * time.Second},
		{"soon", time.Second},
	}

	for _, tt := range tests {
		h := http.Header{}
		if tt.header != "" {
			h.Set("Retry-After", tt.header)
		}
		if got := retryAfter(h, time.Second); got != tt.want {
			t.Errorf("retryAfter(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestTrackURI(t *testing.T) {
	if got := trackURI("abc"); got != "spotify:track:abc" {
		t.Errorf("unexpected uri: %s", got)
	}
	if got := trackURI("spotify:track:abc"); got != "spotify:track:abc" {
		t.Errorf("uri should pass through, got %s", got)
	}
}
