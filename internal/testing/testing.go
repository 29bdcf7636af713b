// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"testing"

	"github.com/desertthunder/queuetify/internal/models"
	"github.com/desertthunder/queuetify/internal/services"
)

// MockPlayer is a test double for [services.Player].
//
// Every call is recorded as "Method" or "Method:arg[:arg]". Errors set with Fail are returned until cleared with Succeed.
type MockPlayer struct {
	mu         sync.Mutex
	calls      []string
	errs       map[string]error
	Catalogue  map[string]models.Track
	Playback   *models.Playback
	DeviceList []models.Device
	Refreshed  *models.Credentials
}

// NewMockPlayer returns a player whose catalogue holds tracks.
func NewMockPlayer(tracks ...models.Track) *MockPlayer {
	m := &MockPlayer{Catalogue: map[string]models.Track{}, errs: map[string]error{}}
	for _, t := range tracks {
		m.Catalogue[t.ID] = t
	}
	return m
}

// Fail makes method return err.
func (m *MockPlayer) Fail(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[method] = err
}

// Succeed clears a failure set with Fail.
func (m *MockPlayer) Succeed(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errs, method)
}

// SetPlayback replaces the reported playback state.
func (m *MockPlayer) SetPlayback(p *models.Playback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Playback = p
}

// Calls returns a copy of the recorded calls.
func (m *MockPlayer) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// Called reports whether call was recorded.
func (m *MockPlayer) Called(call string) bool {
	return slices.Contains(m.Calls(), call)
}

// Reset forgets recorded calls.
func (m *MockPlayer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MockPlayer) record(method string, args ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := method
	for _, a := range args {
		call += ":" + a
	}
	m.calls = append(m.calls, call)
	return m.errs[method]
}

func (m *MockPlayer) Search(ctx context.Context, query, market string, limit int) ([]models.Track, error) {
	if err := m.record("Search", query, market); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.Catalogue))
	for id := range m.Catalogue {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	tracks := []models.Track{}
	for _, id := range ids {
		if len(tracks) == limit {
			break
		}
		tracks = append(tracks, m.Catalogue[id])
	}
	return tracks, nil
}

func (m *MockPlayer) CurrentPlayback(ctx context.Context) (*models.Playback, error) {
	if err := m.record("CurrentPlayback"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Playback, nil
}

func (m *MockPlayer) StartPlayback(ctx context.Context, trackID, deviceID string) error {
	return m.record("StartPlayback", trackID, deviceID)
}

func (m *MockPlayer) ResumePlayback(ctx context.Context) error {
	return m.record("ResumePlayback")
}

func (m *MockPlayer) AddToQueue(ctx context.Context, trackID string) error {
	return m.record("AddToQueue", trackID)
}

func (m *MockPlayer) Devices(ctx context.Context) ([]models.Device, error) {
	if err := m.record("Devices"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.DeviceList), nil
}

func (m *MockPlayer) TransferPlayback(ctx context.Context, deviceID string) error {
	return m.record("TransferPlayback", deviceID)
}

func (m *MockPlayer) RefreshToken(ctx context.Context) (*models.Credentials, error) {
	if err := m.record("RefreshToken"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Refreshed == nil {
		return nil, fmt.Errorf("no refreshed credentials configured")
	}
	creds := *m.Refreshed
	return &creds, nil
}

func (m *MockPlayer) Tracks(ctx context.Context, ids []string) ([]models.Track, error) {
	if err := m.record("Tracks"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tracks := make([]models.Track, 0, len(ids))
	for _, id := range ids {
		if t, ok := m.Catalogue[id]; ok {
			tracks = append(tracks, t)
		}
	}
	return tracks, nil
}

// MockPlayerProvider hands out a single [MockPlayer] and records the credentials it was asked for.
type MockPlayerProvider struct {
	mu     sync.Mutex
	player *MockPlayer
	creds  []models.Credentials
}

func NewMockPlayerProvider(p *MockPlayer) *MockPlayerProvider {
	return &MockPlayerProvider{player: p}
}

func (m *MockPlayerProvider) Player(creds models.Credentials) services.Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = append(m.creds, creds)
	return m.player
}

// LastCredentials returns the credentials of the most recent Player call.
func (m *MockPlayerProvider) LastCredentials() (models.Credentials, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.creds) == 0 {
		return models.Credentials{}, false
	}
	return m.creds[len(m.creds)-1], true
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
