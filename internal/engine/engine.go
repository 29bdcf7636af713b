// package engine implements the playback reconciliation engine: the single worker that mutates
// session state in the [models.Store] and commands the [services.Player].
//
// Requests are submitted without blocking and processed strictly one at a time in arrival order.
// Results are emitted as [models.Reply] values on [Engine.Replies].
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/queuetify/internal/models"
	"github.com/desertthunder/queuetify/internal/services"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultPollInterval    = 5 * time.Second
	DefaultRefreshInterval = 45 * time.Minute
	DefaultRefreshBackoff  = 30 * time.Second
	DefaultRefreshMargin   = 5 * time.Minute
	DefaultRequestTimeout  = 10 * time.Second
	DefaultCacheSize       = 1024
	DefaultReplyBuffer     = 256

	// MaxSearchResults caps every search reply.
	MaxSearchResults = 10
)

// Options tunes an [Engine]. Zero values take the package defaults.
type Options struct {
	PollInterval    time.Duration // PollInterval is the hub's tick; a track ending sooner than this is advanced
	RefreshInterval time.Duration // RefreshInterval is the delay before the next token refresh after a success
	RefreshBackoff  time.Duration // RefreshBackoff is the delay after a failed refresh
	RefreshMargin   time.Duration // RefreshMargin is how long before expiry a token is renewed
	RequestTimeout  time.Duration // RequestTimeout bounds the Store and Player calls of one request
	SearchLimit     int           // SearchLimit is clamped to [1, MaxSearchResults]
	CacheSize       int           // CacheSize is the number of tracks kept in the metadata cache
	ReplyBuffer     int
	Logger          *log.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = DefaultRefreshInterval
	}
	if o.RefreshBackoff <= 0 {
		o.RefreshBackoff = DefaultRefreshBackoff
	}
	if o.RefreshMargin <= 0 {
		o.RefreshMargin = DefaultRefreshMargin
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.SearchLimit <= 0 || o.SearchLimit > MaxSearchResults {
		o.SearchLimit = MaxSearchResults
	}
	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.ReplyBuffer <= 0 {
		o.ReplyBuffer = DefaultReplyBuffer
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// Engine is the sole writer of Store and Player state.
type Engine struct {
	store   models.Store
	players services.PlayerProvider
	opts    Options
	logger  *log.Logger
	tracks  *lru.Cache[string, models.Track]
	now     func() time.Time

	mu      sync.Mutex
	pending []models.Request
	signal  chan struct{}
	replies chan models.Reply
}

// New creates an Engine over store and players.
func New(store models.Store, players services.PlayerProvider, opts Options) (*Engine, error) {
	if store == nil || players == nil {
		return nil, fmt.Errorf("engine requires a store and a player provider")
	}

	opts = opts.withDefaults()
	cache, err := lru.New[string, models.Track](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create track cache: %w", err)
	}

	return &Engine{
		store:   store,
		players: players,
		opts:    opts,
		logger:  opts.Logger.With("component", "engine"),
		tracks:  cache,
		now:     time.Now,
		signal:  make(chan struct{}, 1),
		replies: make(chan models.Reply, opts.ReplyBuffer),
	}, nil
}

// Submit enqueues req. It never blocks.
func (e *Engine) Submit(req models.Request) {
	e.mu.Lock()
	e.pending = append(e.pending, req)
	e.mu.Unlock()

	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// Pending reports how many requests are waiting.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Replies returns the channel results are emitted on.
func (e *Engine) Replies() <-chan models.Reply {
	return e.replies
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

func (e *Engine) next() (models.Request, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) == 0 {
		return nil, false
	}
	req := e.pending[0]
	e.pending[0] = nil
	e.pending = e.pending[1:]
	return req, true
}

// Run processes requests until ctx is cancelled. Requests still queued at that point are dropped.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started")
	defer e.logger.Info("engine stopped", "dropped", e.Pending())

	for {
		if ctx.Err() != nil {
			return nil
		}

		req, ok := e.next()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-e.signal:
				continue
			}
		}

		e.handle(ctx, req)
	}
}

// handle runs one request to completion under the request timeout.
func (e *Engine) handle(ctx context.Context, req models.Request) {
	reqCtx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	defer cancel()

	start := time.Now()
	switch r := req.(type) {
	case models.Search:
		e.search(reqCtx, r)
	case models.Queue:
		e.queue(reqCtx, r)
	case models.Vote:
		e.vote(reqCtx, r)
	case models.GetState:
		e.broadcastState(reqCtx, r.SessionID, r.ConnectionID)
	case models.PollState:
		e.pollState(reqCtx, r)
	case models.Refresh:
		e.refresh(reqCtx, r)
	case models.Kill:
		e.kill(reqCtx, r)
	case models.Devices:
		e.devices(reqCtx, r)
	case models.Transfer:
		e.transfer(reqCtx, r)
	case models.VotedTracks:
		e.votedTracks(reqCtx, r)
	default:
		e.logger.Error("unknown request", "type", fmt.Sprintf("%T", req), "session", req.Session())
		return
	}
	e.logger.Debug("handled request", "type", fmt.Sprintf("%T", req), "session", req.Session(), "elapsed", time.Since(start))
}

// emit hands a reply to the hub. It waits for space rather than dropping.
func (e *Engine) emit(ctx context.Context, reply models.Reply) {
	select {
	case e.replies <- reply:
	case <-ctx.Done():
		e.logger.Warn("reply dropped", "type", fmt.Sprintf("%T", reply), "session", reply.Session(), "error", ctx.Err())
	}
}
