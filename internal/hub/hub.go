// package hub implements the connection registry and broadcast hub.
//
// A [Hub] owns the session → connections and connection → [Delivery] maps inside its Run goroutine.
// Every public method posts an event to that goroutine, so no locks guard the registries.
// The hub relays client requests to the engine, translates engine replies into client envelopes,
// drives the periodic PollState tick, and keeps one token-refresh timer chain per active session.
package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/queuetify/internal/models"
)

const (
	DefaultPollInterval = 5 * time.Second
	eventBuffer         = 256
)

// ErrStopped is returned by calls made after Run has exited.
var ErrStopped = errors.New("hub stopped")

// Delivery is an outbound handle to one connection. Deliver must not block; false means the message was dropped.
type Delivery interface {
	Deliver(models.Envelope) bool
}

// Engine is the request sink and reply source the hub is wired to.
type Engine interface {
	Submit(models.Request)
	Replies() <-chan models.Reply
}

// Options tunes a [Hub]. Zero values take the package defaults.
type Options struct {
	PollInterval time.Duration // PollInterval is how often every active session is reconciled
	Logger       *log.Logger
}

// Stats is a point-in-time count of the registry.
type Stats struct {
	Sessions    int `json:"sessions"`
	Connections int `json:"connections"`
}

type stopper interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) stopper

func timeAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

type (
	connectEvent struct {
		sessionID, connectionID string
		delivery                Delivery
	}
	disconnectEvent struct {
		sessionID, connectionID string
	}
	relayEvent struct {
		request models.Request
	}
	broadcastEvent struct {
		sessionID, target string
		envelope          models.Envelope
	}
	statsEvent struct {
		reply chan Stats
	}
)

// Hub is the connection registry and broadcast hub.
type Hub struct {
	engine    Engine
	opts      Options
	logger    *log.Logger
	afterFunc afterFunc
	events    chan any
	done      chan struct{}

	// Owned by the Run goroutine.
	sessions      map[string]map[string]struct{}
	clients       map[string]Delivery
	refreshTimers map[string]stopper
}

// New creates a Hub wired to engine. Call Run to start it.
func New(engine Engine, opts Options) *Hub {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Hub{
		engine:        engine,
		opts:          opts,
		logger:        opts.Logger.With("component", "hub"),
		afterFunc:     timeAfterFunc,
		events:        make(chan any, eventBuffer),
		done:          make(chan struct{}),
		sessions:      make(map[string]map[string]struct{}),
		clients:       make(map[string]Delivery),
		refreshTimers: make(map[string]stopper),
	}
}

// Run owns the registries until ctx is cancelled or the engine's reply channel closes.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.opts.PollInterval)
	defer ticker.Stop()
	defer close(h.done)
	defer h.stopTimers()

	h.logger.Info("hub started", "poll_interval", h.opts.PollInterval)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub stopped")
			return nil
		case ev := <-h.events:
			h.handleEvent(ev)
		case reply, ok := <-h.engine.Replies():
			if !ok {
				return fmt.Errorf("engine reply channel closed")
			}
			h.handleReply(reply)
		case <-ticker.C:
			h.tick()
		}
	}
}

func (h *Hub) post(ev any) error {
	select {
	case h.events <- ev:
		return nil
	case <-h.done:
		return ErrStopped
	}
}

// Connect registers a connection under its session and arms the session's refresh chain if none is running.
// Connecting an already registered id replaces its delivery handle.
func (h *Hub) Connect(sessionID, connectionID string, d Delivery) error {
	return h.post(connectEvent{sessionID: sessionID, connectionID: connectionID, delivery: d})
}

// Disconnect removes a connection. The last connection of a session takes the session out of the poll set.
func (h *Hub) Disconnect(sessionID, connectionID string) error {
	return h.post(disconnectEvent{sessionID: sessionID, connectionID: connectionID})
}

// Relay hands a client request to the engine unchanged.
func (h *Hub) Relay(req models.Request) error {
	return h.post(relayEvent{request: req})
}

// Kill asks the engine to purge a session. Its connections receive a Shutdown when that completes.
func (h *Hub) Kill(sessionID string) error {
	return h.Relay(models.Kill{SessionID: sessionID})
}

// Broadcast delivers env to every connection in the session, or only to target when it is set.
func (h *Hub) Broadcast(sessionID string, env models.Envelope, target string) error {
	return h.post(broadcastEvent{sessionID: sessionID, target: target, envelope: env})
}

// Stats counts active sessions and connections.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	if err := h.post(statsEvent{reply: reply}); err != nil {
		return Stats{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-h.done:
		return Stats{}, ErrStopped
	}
}

func (h *Hub) handleEvent(ev any) {
	switch e := ev.(type) {
	case connectEvent:
		h.connect(e.sessionID, e.connectionID, e.delivery)
	case disconnectEvent:
		h.disconnect(e.sessionID, e.connectionID)
	case relayEvent:
		h.engine.Submit(e.request)
	case broadcastEvent:
		h.broadcast(e.sessionID, e.envelope, e.target)
	case statsEvent:
		e.reply <- h.stats()
	default:
		h.logger.Error("unknown event", "type", fmt.Sprintf("%T", ev))
	}
}

func (h *Hub) connect(sessionID, connectionID string, d Delivery) {
	conns, ok := h.sessions[sessionID]
	if !ok {
		conns = make(map[string]struct{})
		h.sessions[sessionID] = conns
	}
	conns[connectionID] = struct{}{}
	h.clients[connectionID] = d

	// The engine checks the stored expiry straight away and replies with the real delay.
	if _, armed := h.refreshTimers[sessionID]; !armed {
		h.armRefresh(sessionID, 0)
	}
	h.logger.Debug("connected", "session", sessionID, "connection", connectionID, "connections", len(conns))
}

// disconnect stops the session's refresh chain along with polling once nobody is connected.
// The stored session is kept; the next Connect re-arms the chain.
func (h *Hub) disconnect(sessionID, connectionID string) {
	delete(h.clients, connectionID)

	conns, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	delete(conns, connectionID)
	h.logger.Debug("disconnected", "session", sessionID, "connection", connectionID, "connections", len(conns))

	if len(conns) == 0 {
		h.dropSession(sessionID)
		h.logger.Info("session inactive", "session", sessionID)
	}
}

// dropSession forgets a session, its connections, and its refresh timer.
func (h *Hub) dropSession(sessionID string) {
	for connectionID := range h.sessions[sessionID] {
		delete(h.clients, connectionID)
	}
	delete(h.sessions, sessionID)

	if timer, ok := h.refreshTimers[sessionID]; ok {
		timer.Stop()
		delete(h.refreshTimers, sessionID)
	}
}

func (h *Hub) armRefresh(sessionID string, delay time.Duration) {
	if timer, ok := h.refreshTimers[sessionID]; ok {
		timer.Stop()
	}
	h.refreshTimers[sessionID] = h.afterFunc(delay, func() {
		h.engine.Submit(models.Refresh{SessionID: sessionID})
	})
}

func (h *Hub) stopTimers() {
	for sessionID, timer := range h.refreshTimers {
		timer.Stop()
		delete(h.refreshTimers, sessionID)
	}
}

// tick enqueues one PollState per active session.
func (h *Hub) tick() {
	for sessionID := range h.sessions {
		h.engine.Submit(models.PollState{SessionID: sessionID})
	}
}

func (h *Hub) handleReply(reply models.Reply) {
	switch r := reply.(type) {
	case models.SearchComplete:
		h.broadcast(r.SessionID, models.NewSearchResult(r.Tracks), r.ConnectionID)
	case models.StateUpdate:
		h.broadcast(r.SessionID, models.NewStateUpdate(r.Snapshot), r.Target)
	case models.DevicesComplete:
		h.broadcast(r.SessionID, models.NewDevices(r.Devices), r.ConnectionID)
	case models.TransferComplete:
		h.broadcast(r.SessionID, models.NewTransferResponse(r.DeviceID, r.OK), r.ConnectionID)
	case models.VotedTracksComplete:
		h.broadcast(r.SessionID, models.NewVotedTracks(r.TrackIDs), r.ConnectionID)
	case models.KillComplete:
		h.broadcast(r.SessionID, models.NewShutdown(), "")
		h.dropSession(r.SessionID)
	case models.RefreshScheduled:
		if _, active := h.sessions[r.SessionID]; !active {
			h.logger.Debug("not re-arming refresh for inactive session", "session", r.SessionID)
			return
		}
		h.armRefresh(r.SessionID, r.Delay)
	default:
		h.logger.Error("unknown reply", "type", fmt.Sprintf("%T", reply), "session", reply.Session())
	}
}

// broadcast delivers to the whole session or to target. Unknown connections are logged and skipped.
func (h *Hub) broadcast(sessionID string, env models.Envelope, target string) {
	if target != "" {
		if _, ok := h.sessions[sessionID][target]; !ok {
			h.logger.Warn("target not connected to session", "session", sessionID, "connection", target, "type", env.Type)
			return
		}
		h.deliver(target, env)
		return
	}

	for connectionID := range h.sessions[sessionID] {
		h.deliver(connectionID, env)
	}
}

func (h *Hub) deliver(connectionID string, env models.Envelope) {
	d, ok := h.clients[connectionID]
	if !ok {
		h.logger.Warn("no delivery handle", "connection", connectionID, "type", env.Type)
		return
	}
	if !d.Deliver(env) {
		h.logger.Warn("message dropped", "connection", connectionID, "type", env.Type)
	}
}

func (h *Hub) stats() Stats {
	s := Stats{Sessions: len(h.sessions)}
	for _, conns := range h.sessions {
		s.Connections += len(conns)
	}
	return s
}
