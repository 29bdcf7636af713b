package models

import "time"

// Request is a unit of work for the engine. The set of implementations is closed.
type Request interface {
	Session() string
	request()
}

// Search looks up tracks for one connection.
type Search struct {
	SessionID    string
	ConnectionID string
	Query        string
}

// Queue adds a track to the session, starting playback if nothing is current.
type Queue struct {
	SessionID    string
	ConnectionID string
	TrackID      string
}

// Vote upvotes a queued track once per connection.
type Vote struct {
	SessionID    string
	ConnectionID string
	TrackID      string
}

// GetState asks for the snapshot to be sent to one connection.
type GetState struct {
	SessionID    string
	ConnectionID string
}

// PollState reconciles stored intent with the Player's live report.
type PollState struct {
	SessionID string
}

// Refresh renews the session's access token.
type Refresh struct {
	SessionID string
}

// Kill removes every persisted trace of the session.
type Kill struct {
	SessionID string
}

// Devices lists the session owner's Spotify Connect devices.
type Devices struct {
	SessionID    string
	ConnectionID string
}

// Transfer moves playback to DeviceID.
type Transfer struct {
	SessionID    string
	ConnectionID string
	DeviceID     string
}

// VotedTracks asks which tracks a connection has voted for.
type VotedTracks struct {
	SessionID    string
	ConnectionID string
}

func (r Search) Session() string      { return r.SessionID }
func (r Queue) Session() string       { return r.SessionID }
func (r Vote) Session() string        { return r.SessionID }
func (r GetState) Session() string    { return r.SessionID }
func (r PollState) Session() string   { return r.SessionID }
func (r Refresh) Session() string     { return r.SessionID }
func (r Kill) Session() string        { return r.SessionID }
func (r Devices) Session() string     { return r.SessionID }
func (r Transfer) Session() string    { return r.SessionID }
func (r VotedTracks) Session() string { return r.SessionID }

func (Search) request()      {}
func (Queue) request()       {}
func (Vote) request()        {}
func (GetState) request()    {}
func (PollState) request()   {}
func (Refresh) request()     {}
func (Kill) request()        {}
func (Devices) request()     {}
func (Transfer) request()    {}
func (VotedTracks) request() {}

// Reply is an engine result routed back through the hub. The set of implementations is closed.
type Reply interface {
	Session() string
	reply()
}

// SearchComplete carries search results for the requesting connection.
type SearchComplete struct {
	SessionID    string
	ConnectionID string
	Tracks       []TrackInfo
}

// StateUpdate carries a snapshot for the whole session, or only Target when set.
type StateUpdate struct {
	SessionID string
	Target    string
	Snapshot  StateSnapshot
}

// KillComplete reports that the session's data is gone.
type KillComplete struct {
	SessionID string
}

// DevicesComplete carries a device listing for the requesting connection.
type DevicesComplete struct {
	SessionID    string
	ConnectionID string
	Devices      []Device
}

// TransferComplete reports the outcome of a Transfer.
type TransferComplete struct {
	SessionID    string
	ConnectionID string
	DeviceID     string
	OK           bool
}

// VotedTracksComplete lists the tracks a connection has voted for.
type VotedTracksComplete struct {
	SessionID    string
	ConnectionID string
	TrackIDs     []string
}

// RefreshScheduled asks the hub to run the next Refresh after Delay.
type RefreshScheduled struct {
	SessionID string
	Delay     time.Duration
	OK        bool
}

func (r SearchComplete) Session() string      { return r.SessionID }
func (r StateUpdate) Session() string         { return r.SessionID }
func (r KillComplete) Session() string        { return r.SessionID }
func (r DevicesComplete) Session() string     { return r.SessionID }
func (r TransferComplete) Session() string    { return r.SessionID }
func (r VotedTracksComplete) Session() string { return r.SessionID }
func (r RefreshScheduled) Session() string    { return r.SessionID }

func (SearchComplete) reply()      {}
func (StateUpdate) reply()         {}
func (KillComplete) reply()        {}
func (DevicesComplete) reply()     {}
func (TransferComplete) reply()    {}
func (VotedTracksComplete) reply() {}
func (RefreshScheduled) reply()    {}

// EnvelopeType tags a server-to-client message.
type EnvelopeType string

const (
	SearchResultMsg     EnvelopeType = "SearchResult"
	StateUpdateMsg      EnvelopeType = "StateUpdate"
	DevicesMsg          EnvelopeType = "Devices"
	TransferResponseMsg EnvelopeType = "TransferResponse"
	VotedTracksMsg      EnvelopeType = "VotedTracks"
	ShutdownMsg         EnvelopeType = "Shutdown"
)

// Envelope is one server-to-client push.
type Envelope struct {
	Type    EnvelopeType `json:"type"`
	Payload any          `json:"payload,omitempty"`
}

// TransferResponse is the payload of a [TransferResponseMsg].
type TransferResponse struct {
	DeviceID string `json:"device_id"`
	OK       bool   `json:"ok"`
}

// NewSearchResult wraps search hits.
func NewSearchResult(tracks []TrackInfo) Envelope {
	if tracks == nil {
		tracks = []TrackInfo{}
	}
	return Envelope{Type: SearchResultMsg, Payload: tracks}
}

// NewStateUpdate wraps a snapshot.
func NewStateUpdate(s StateSnapshot) Envelope {
	if s.Queue == nil {
		s.Queue = []TrackInfo{}
	}
	return Envelope{Type: StateUpdateMsg, Payload: s}
}

// NewDevices wraps a device listing.
func NewDevices(devices []Device) Envelope {
	if devices == nil {
		devices = []Device{}
	}
	return Envelope{Type: DevicesMsg, Payload: devices}
}

// NewTransferResponse wraps a transfer outcome.
func NewTransferResponse(deviceID string, ok bool) Envelope {
	return Envelope{Type: TransferResponseMsg, Payload: TransferResponse{DeviceID: deviceID, OK: ok}}
}

// NewVotedTracks wraps the ids a connection voted for.
func NewVotedTracks(ids []string) Envelope {
	if ids == nil {
		ids = []string{}
	}
	return Envelope{Type: VotedTracksMsg, Payload: ids}
}

// NewShutdown tells clients the session is over.
func NewShutdown() Envelope {
	return Envelope{Type: ShutdownMsg}
}
