package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/queuetify/internal/models"
	"github.com/desertthunder/queuetify/internal/server"
	"github.com/gorilla/websocket"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	QueueView ViewState = iota
	SearchView
	DevicesView
	ClosedView
)

// Model represents the TUI application state.
type Model struct {
	conn      Conn
	sessionID string
	logger    *log.Logger
	view      ViewState
	width     int
	height    int
	snapshot  models.StateSnapshot
	voted     map[string]bool
	queue     list.Model
	results   list.Model
	devices   list.Model
	input     textinput.Model
	spinner   spinner.Model
	loading   bool
	status    string
	err       error
	help      help.Model
	keys      keyMap
}

// NewModel creates a TUI for an already connected session.
func NewModel(conn Conn, sessionID string, logger *log.Logger) *Model {
	input := textinput.New()
	input.Placeholder = "artist, track, album..."
	input.CharLimit = 120

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	if logger == nil {
		logger = log.Default()
	}

	return &Model{
		conn:      conn,
		sessionID: sessionID,
		logger:    logger,
		view:      QueueView,
		voted:     map[string]bool{},
		queue:     newList("Queue", nil, 0, 0),
		results:   newList("Results", nil, 0, 0),
		devices:   newList("Devices", nil, 0, 0),
		input:     input,
		spinner:   sp,
		loading:   true,
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Init starts listening and asks which tracks this connection has voted for.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.listen(), m.spinner.Tick, m.send(server.Frame{Type: server.VotedTracksFrame}))
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case QueueView:
			return m.handleQueueKeys(msg)
		case SearchView:
			return m.handleSearchKeys(msg)
		case DevicesView:
			return m.handleDevicesKeys(msg)
		case ClosedView:
			return m, tea.Quit
		}

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgStateUpdate:
		m.snapshot = msg.data.(models.StateSnapshot)
		m.loading = false
		m.refreshQueue()
		return m, m.listen()

	case MsgSearchResult:
		tracks := msg.data.([]models.TrackInfo)
		items := make([]list.Item, len(tracks))
		for i, t := range tracks {
			items[i] = trackItem{track: t}
		}
		m.results.SetItems(items)
		m.loading = false
		m.input.Blur()
		if len(tracks) == 0 {
			m.status = "No results"
		} else {
			m.status = ""
		}
		return m, m.listen()

	case MsgDevices:
		devices := msg.data.([]models.Device)
		items := make([]list.Item, len(devices))
		for i, d := range devices {
			items[i] = deviceItem{device: d}
		}
		m.devices.SetItems(items)
		m.loading = false
		if len(devices) == 0 {
			m.status = "No devices available"
		}
		return m, m.listen()

	case MsgTransferResponse:
		resp := msg.data.(models.TransferResponse)
		if resp.OK {
			m.status = styles.ok.Render("Playback transferred")
		} else {
			m.status = styles.err.Render("Transfer failed")
		}
		m.loading = false
		return m, m.listen()

	case MsgVotedTracks:
		for _, id := range msg.data.([]string) {
			m.voted[id] = true
		}
		m.refreshQueue()
		return m, m.listen()

	case MsgShutdown:
		m.view = ClosedView
		m.loading = false
		m.status = "The host ended this session."
		return m, nil

	case MsgDisconnected:
		err, _ := msg.data.(error)
		m.view = ClosedView
		m.loading = false
		if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			m.err = err
		}
		m.status = "Disconnected."
		return m, nil

	case MsgIgnored:
		return m, m.listen()
	}

	return m, nil
}

func (m *Model) handleQueueKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.search):
		m.view = SearchView
		m.status = ""
		m.input.SetValue("")
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.devices):
		m.view = DevicesView
		m.loading = true
		m.status = ""
		return m, tea.Batch(m.send(server.Frame{Type: server.DevicesFrame}), m.spinner.Tick)
	case key.Matches(msg, m.keys.refresh):
		return m, m.send(server.Frame{Type: server.GetStateFrame})
	case key.Matches(msg, m.keys.vote):
		item, ok := m.queue.SelectedItem().(trackItem)
		if !ok {
			return m, nil
		}
		if m.voted[item.track.ID] {
			m.status = "Already voted for " + item.track.Name
			return m, nil
		}
		m.voted[item.track.ID] = true
		m.status = "Voted for " + item.track.Name
		m.refreshQueue()
		return m, m.send(server.Frame{Type: server.VoteFrame, TrackID: item.track.ID})
	}

	var cmd tea.Cmd
	m.queue, cmd = m.queue.Update(msg)
	return m, cmd
}

// handleSearchKeys sends the query on enter while typing, and queues the selected result on enter afterwards.
func (m *Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = QueueView
		m.input.Blur()
		return m, nil
	case "tab", "/":
		if !m.input.Focused() {
			return m, m.input.Focus()
		}
	case "enter":
		if m.input.Focused() {
			query := strings.TrimSpace(m.input.Value())
			if query == "" {
				return m, nil
			}
			m.loading = true
			m.input.Blur()
			return m, tea.Batch(m.send(server.Frame{Type: server.SearchFrame, Query: query}), m.spinner.Tick)
		}
		item, ok := m.results.SelectedItem().(trackItem)
		if !ok {
			return m, nil
		}
		m.view = QueueView
		m.status = "Queued " + item.track.Name
		return m, m.send(server.Frame{Type: server.QueueFrame, TrackID: item.track.ID})
	}

	var cmd tea.Cmd
	if m.input.Focused() {
		m.input, cmd = m.input.Update(msg)
	} else {
		m.results, cmd = m.results.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleDevicesKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), msg.String() == "q":
		m.view = QueueView
		return m, nil
	case key.Matches(msg, m.keys.enter):
		item, ok := m.devices.SelectedItem().(deviceItem)
		if !ok {
			return m, nil
		}
		m.view = QueueView
		m.loading = true
		m.status = "Transferring to " + item.device.Name
		return m, tea.Batch(m.send(server.Frame{Type: server.TransferFrame, DeviceID: item.device.ID}), m.spinner.Tick)
	}

	var cmd tea.Cmd
	m.devices, cmd = m.devices.Update(msg)
	return m, cmd
}

// refreshQueue rebuilds the queue list from the snapshot and the local vote set.
func (m *Model) refreshQueue() {
	items := make([]list.Item, len(m.snapshot.Queue))
	for i, t := range m.snapshot.Queue {
		items[i] = trackItem{track: t, voted: m.voted[t.ID], queued: true}
	}
	m.queue.SetItems(items)
}

func (m *Model) resize() {
	w, h := max(m.width-4, 0), max(m.height-10, 0)
	m.queue.SetSize(w, h)
	m.results.SetSize(w, max(h-2, 0))
	m.devices.SetSize(w, h)
	m.input.Width = max(w-4, 10)
}

// listen waits for the next server push.
func (m *Model) listen() tea.Cmd {
	return func() tea.Msg {
		data, err := m.conn.Read()
		if err != nil {
			return disconnectedMsg(err)
		}
		msg, err := decodeEnvelope(data)
		if err != nil {
			m.logger.Warn("ignoring server message", "error", err)
			return Msg{kind: MsgIgnored}
		}
		return msg
	}
}

func (m *Model) send(frame server.Frame) tea.Cmd {
	return func() tea.Msg {
		if err := m.conn.Send(frame); err != nil {
			m.logger.Error("send failed", "type", frame.Type, "error", err)
		}
		return nil
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case QueueView:
		return m.renderQueue()
	case SearchView:
		return m.renderSearch()
	case DevicesView:
		return m.renderDevices()
	case ClosedView:
		return m.renderClosed()
	default:
		return ""
	}
}

func (m *Model) header() string {
	return styles.title.Render("queuetify • " + m.sessionID)
}

func (m *Model) nowPlaying() string {
	if m.snapshot.CurrentTrack == nil {
		return styles.help.Render("Nothing playing. Search for a track to start the party.")
	}
	t := m.snapshot.CurrentTrack
	return styles.playing.Render(fmt.Sprintf("▶ %s - %s", t.Name, strings.Join(t.Artists, ", ")))
}

func (m *Model) footer(keys ...key.Binding) string {
	var b strings.Builder
	if m.loading {
		b.WriteString(m.spinner.View() + " ")
	}
	if m.status != "" {
		b.WriteString(m.status)
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.ShortHelpView(keys))
	return b.String()
}

func (m *Model) renderQueue() string {
	body := m.queue.View()
	if len(m.snapshot.Queue) == 0 {
		body = styles.help.Render("The queue is empty.")
	}
	return fmt.Sprintf("%s\n%s\n\n%s\n%s",
		m.header(), m.nowPlaying(), body,
		m.footer(m.keys.vote, m.keys.search, m.keys.devices, m.keys.refresh, m.keys.quit))
}

func (m *Model) renderSearch() string {
	queueKey := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "search/queue"))
	editKey := key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "edit query"))
	return fmt.Sprintf("%s\n%s\n\n%s\n%s",
		m.header(), m.input.View(), m.results.View(),
		m.footer(queueKey, editKey, m.keys.back))
}

func (m *Model) renderDevices() string {
	transferKey := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "transfer"))
	return fmt.Sprintf("%s\n%s\n%s",
		m.header(), m.devices.View(),
		m.footer(transferKey, m.keys.back))
}

func (m *Model) renderClosed() string {
	msg := m.status
	if m.err != nil {
		msg = styles.err.Render(fmt.Sprintf("Connection lost: %v", m.err))
	}
	return fmt.Sprintf("%s\n%s\n\n%s", m.header(), msg, styles.help.Render("Press any key to exit"))
}

// Err returns the error that closed the connection, if any.
func (m *Model) Err() error {
	if m.err != nil && !errors.Is(m.err, websocket.ErrCloseSent) {
		return m.err
	}
	return nil
}
