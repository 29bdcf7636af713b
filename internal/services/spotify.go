// Spotify Web API implementation of [Player]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/queuetify/internal/models"
	"github.com/desertthunder/queuetify/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"

	// DefaultAPIBaseURL is the Spotify Web API root.
	DefaultAPIBaseURL = "https://api.spotify.com/v1"

	maxTracksPerRequest = 50
	maxSearchLimit      = 50
	maxAttempts         = 3
	initialBackoff      = 500 * time.Millisecond
)

// Scopes are the OAuth scopes a host grants when creating a session.
var Scopes = []string{
	"user-read-private",
	"user-read-playback-state",
	"user-modify-playback-state",
	"user-read-currently-playing",
}

// APIError is a non-2xx response from the Spotify Web API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("spotify API error: status %d", e.Status)
	}
	return fmt.Sprintf("spotify API error: status %d: %s", e.Status, e.Message)
}

// Unwrap lets callers match [shared.ErrAPIRequest] and, for auth failures, [shared.ErrNotAuthenticated] or [shared.ErrForbidden].
func (e *APIError) Unwrap() []error {
	errs := []error{shared.ErrAPIRequest}
	switch e.Status {
	case http.StatusUnauthorized:
		errs = append(errs, shared.ErrNotAuthenticated)
	case http.StatusForbidden:
		errs = append(errs, shared.ErrForbidden)
	case http.StatusServiceUnavailable:
		errs = append(errs, shared.ErrServiceUnavailable)
	}
	return errs
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Country     string `json:"country"`
	Product     string `json:"product"` // premium, free, etc.
}

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyTrack represents a Spotify track. ID is null for local files.
type SpotifyTrack struct {
	ID         *string         `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	DurationMS int             `json:"duration_ms"`
	URI        string          `json:"uri"`
}

func (t SpotifyTrack) toModel() (models.Track, bool) {
	if t.ID == nil || *t.ID == "" {
		return models.Track{}, false
	}
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}
	return models.Track{
		ID:       *t.ID,
		Name:     t.Name,
		Artists:  artists,
		Duration: time.Duration(t.DurationMS) * time.Millisecond,
		URI:      t.URI,
	}, true
}

// SpotifyPlaybackState is the response of GET /me/player.
type SpotifyPlaybackState struct {
	IsPlaying            bool          `json:"is_playing"`
	ProgressMS           *int          `json:"progress_ms"`
	Item                 *SpotifyTrack `json:"item"`
	CurrentlyPlayingType string        `json:"currently_playing_type"`
}

func (p SpotifyPlaybackState) toModel() *models.Playback {
	playback := &models.Playback{IsPlaying: p.IsPlaying}
	if p.ProgressMS != nil {
		progress := time.Duration(*p.ProgressMS) * time.Millisecond
		playback.Progress = &progress
	}
	if p.Item != nil {
		if track, ok := p.Item.toModel(); ok {
			playback.Item = &track
		}
	}
	return playback
}

// SpotifyDevice represents a Spotify Connect device. ID is null for restricted devices.
type SpotifyDevice struct {
	ID       *string `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	IsActive bool    `json:"is_active"`
}

// SpotifyOptions configures a [SpotifyService].
type SpotifyOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// APIBaseURL and TokenURL default to Spotify's endpoints.
	APIBaseURL string
	TokenURL   string

	// RateLimit is requests per second across all sessions; zero disables limiting.
	RateLimit float64
	Burst     int

	HTTPClient *http.Client
	Logger     *log.Logger
}

// SpotifyService holds the OAuth application config and the rate limiter shared by every session's [SpotifyPlayer].
type SpotifyService struct {
	config     *oauth2.Config
	baseURL    string
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *log.Logger
	backoff    time.Duration
}

var _ PlayerProvider = (*SpotifyService)(nil)

// NewSpotifyService creates a new Spotify service with the given OAuth2 application credentials.
func NewSpotifyService(opts SpotifyOptions) (*SpotifyService, error) {
	if opts.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	if opts.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}

	baseURL := strings.TrimRight(opts.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &SpotifyService{
		config: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyAuthURL,
				TokenURL: tokenURL,
			},
		},
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(limit, burst),
		httpClient: client,
		logger:     logger,
		backoff:    initialBackoff,
	}, nil
}

// AuthURL returns the OAuth2 authorization URL for host login.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token set.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*models.Credentials, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", shared.ErrAuthFailed)
	}

	token, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	return credentialsFromToken(token), nil
}

// UserProfile retrieves the profile of the user owning creds.
func (s *SpotifyService) UserProfile(ctx context.Context, creds models.Credentials) (*SpotifyUser, error) {
	var user SpotifyUser
	p := s.newPlayer(creds)
	if err := p.doRequest(ctx, http.MethodGet, "/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Player returns a [SpotifyPlayer] bound to creds.
func (s *SpotifyService) Player(creds models.Credentials) Player {
	return s.newPlayer(creds)
}

func (s *SpotifyService) newPlayer(creds models.Credentials) *SpotifyPlayer {
	return &SpotifyPlayer{service: s, creds: creds}
}

func (s *SpotifyService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func credentialsFromToken(token *oauth2.Token) *models.Credentials {
	tokenType := token.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &models.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    tokenType,
		Expiry:       token.Expiry,
	}
}

// SpotifyPlayer implements [Player] for one session's credentials.
type SpotifyPlayer struct {
	service *SpotifyService
	creds   models.Credentials
}

var _ Player = (*SpotifyPlayer)(nil)

// doRequest performs an authenticated, rate-limited request to the Spotify API.
//
// 429 and 5xx responses are retried with exponential backoff; a Retry-After header overrides the delay.
// A 204 leaves result untouched.
func (p *SpotifyPlayer) doRequest(ctx context.Context, method, endpoint string, query url.Values, body, result any) error {
	if p.creds.AccessToken == "" {
		return shared.ErrNotAuthenticated
	}

	apiURL := p.service.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	delay := p.service.backoff
	for attempt := 1; ; attempt++ {
		if err := p.service.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, method, apiURL, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+p.creds.AccessToken)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := p.service.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}

		if retryable(resp.StatusCode) && attempt < maxAttempts {
			wait := retryAfter(resp.Header, delay)
			resp.Body.Close()
			p.service.logger.Warn("retrying spotify request", "method", method, "endpoint", endpoint, "status", resp.StatusCode, "attempt", attempt, "wait", wait)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			delay *= 2
			continue
		}

		return decodeResponse(resp, result)
	}
}

func decodeResponse(resp *http.Response, result any) error {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if result == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var body struct {
		Error struct {
			Status  int    `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Message = body.Error.Message
	}
	return apiErr
}

func retryAfter(h http.Header, fallback time.Duration) time.Duration {
	if secs, err := strconv.Atoi(h.Get("Retry-After")); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// trackURI converts a bare track id to a Spotify URI.
func trackURI(trackID string) string {
	if strings.HasPrefix(trackID, "spotify:") {
		return trackID
	}
	return "spotify:track:" + trackID
}

// Search queries the catalogue for tracks. Hits without an id are dropped.
func (p *SpotifyPlayer) Search(ctx context.Context, query, market string, limit int) ([]models.Track, error) {
	if strings.TrimSpace(query) == "" {
		return []models.Track{}, nil
	}
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", strconv.Itoa(limit))
	if market != "" {
		params.Set("market", market)
	}

	var response struct {
		Tracks struct {
			Items []SpotifyTrack `json:"items"`
		} `json:"tracks"`
	}
	if err := p.doRequest(ctx, http.MethodGet, "/search", params, nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(response.Tracks.Items))
	for _, item := range response.Tracks.Items {
		if track, ok := item.toModel(); ok {
			tracks = append(tracks, track)
		}
	}
	return tracks, nil
}

// CurrentPlayback returns the device's playback state, or nil when nothing is active.
func (p *SpotifyPlayer) CurrentPlayback(ctx context.Context) (*models.Playback, error) {
	var state *SpotifyPlaybackState
	if err := p.doRequest(ctx, http.MethodGet, "/me/player", nil, nil, &state); err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}
	return state.toModel(), nil
}

// StartPlayback plays trackID from the start.
func (p *SpotifyPlayer) StartPlayback(ctx context.Context, trackID, deviceID string) error {
	var params url.Values
	if deviceID != "" {
		params = url.Values{"device_id": {deviceID}}
	}
	body := map[string][]string{"uris": {trackURI(trackID)}}
	return p.doRequest(ctx, http.MethodPut, "/me/player/play", params, body, nil)
}

// ResumePlayback resumes the current item.
func (p *SpotifyPlayer) ResumePlayback(ctx context.Context) error {
	return p.doRequest(ctx, http.MethodPut, "/me/player/play", nil, nil, nil)
}

// AddToQueue appends trackID to the device queue.
func (p *SpotifyPlayer) AddToQueue(ctx context.Context, trackID string) error {
	params := url.Values{"uri": {trackURI(trackID)}}
	return p.doRequest(ctx, http.MethodPost, "/me/player/queue", params, nil, nil)
}

// Devices lists devices that can be targeted. Restricted devices without an id are skipped.
func (p *SpotifyPlayer) Devices(ctx context.Context) ([]models.Device, error) {
	var response struct {
		Devices []SpotifyDevice `json:"devices"`
	}
	if err := p.doRequest(ctx, http.MethodGet, "/me/player/devices", nil, nil, &response); err != nil {
		return nil, err
	}

	devices := make([]models.Device, 0, len(response.Devices))
	for _, d := range response.Devices {
		if d.ID == nil || *d.ID == "" {
			continue
		}
		devices = append(devices, models.Device{ID: *d.ID, Name: d.Name, Type: d.Type, IsActive: d.IsActive})
	}
	return devices, nil
}

// TransferPlayback moves playback to deviceID and starts it.
func (p *SpotifyPlayer) TransferPlayback(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("%w: device id is required", shared.ErrInvalidInput)
	}
	body := map[string]any{"device_ids": []string{deviceID}, "play": true}
	return p.doRequest(ctx, http.MethodPut, "/me/player", nil, body, nil)
}

// RefreshToken obtains a new access token. The stored refresh token and market carry over when Spotify does not rotate them.
func (p *SpotifyPlayer) RefreshToken(ctx context.Context) (*models.Credentials, error) {
	if p.creds.RefreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	expired := &oauth2.Token{
		RefreshToken: p.creds.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}
	token, err := p.service.config.TokenSource(p.service.oauthContext(ctx), expired).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	creds := credentialsFromToken(token)
	if creds.RefreshToken == "" {
		creds.RefreshToken = p.creds.RefreshToken
	}
	creds.Market = p.creds.Market
	p.creds = *creds
	return creds, nil
}

// Tracks resolves ids in batches of 50. Ids Spotify does not recognise are omitted.
func (p *SpotifyPlayer) Tracks(ctx context.Context, ids []string) ([]models.Track, error) {
	tracks := make([]models.Track, 0, len(ids))
	for start := 0; start < len(ids); start += maxTracksPerRequest {
		end := min(start+maxTracksPerRequest, len(ids))

		params := url.Values{"ids": {strings.Join(ids[start:end], ",")}}
		if p.creds.Market != "" && p.creds.Market != models.DefaultMarket {
			params.Set("market", p.creds.Market)
		}

		var response struct {
			Tracks []*SpotifyTrack `json:"tracks"`
		}
		if err := p.doRequest(ctx, http.MethodGet, "/tracks", params, nil, &response); err != nil {
			return nil, err
		}

		for _, item := range response.Tracks {
			if item == nil {
				continue
			}
			if track, ok := item.toModel(); ok {
				tracks = append(tracks, track)
			}
		}
	}
	return tracks, nil
}
