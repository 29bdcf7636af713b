// package formatter renders session queues and listings as plain text, Markdown, or CSV
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/queuetify/internal/models"
	"github.com/desertthunder/queuetify/internal/shared"
)

// Output formats accepted by [Export].
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatCSV      = "csv"
)

// Formats lists the names accepted by [Export].
var Formats = []string{FormatText, FormatMarkdown, FormatCSV}

// Row is one track of a session, resolved to catalogue metadata when available.
type Row struct {
	TrackID  string
	Name     string
	Artists  []string
	Votes    int
	Duration time.Duration
}

// Title renders "Artists - Name", or the bare track id when the track was not resolved.
func (r Row) Title() string {
	if r.Name == "" {
		return r.TrackID
	}
	if len(r.Artists) == 0 {
		return r.Name
	}
	return strings.Join(r.Artists, ", ") + " - " + r.Name
}

// QueueExport is a session's current track and ordered queue prepared for output.
type QueueExport struct {
	SessionID    string
	CreatedAt    time.Time
	DeviceID     string
	CurrentTrack *Row
	Queue        []Row
}

// NewQueueExport orders entries by votes and resolves each id against tracks. Missing ids keep only the id.
func NewQueueExport(s *models.Session, entries []models.QueueEntry, tracks map[string]models.Track) *QueueExport {
	row := func(id string, votes int) Row {
		r := Row{TrackID: id, Votes: votes}
		if t, ok := tracks[id]; ok {
			r.Name, r.Artists, r.Duration = t.Name, t.Artists, t.Duration
		}
		return r
	}

	export := &QueueExport{SessionID: s.ID, CreatedAt: s.CreatedAt, DeviceID: s.DeviceID}
	if s.CurrentTrack != "" {
		current := row(s.CurrentTrack, 0)
		export.CurrentTrack = &current
	}

	sorted := append([]models.QueueEntry(nil), entries...)
	models.SortQueue(sorted)
	export.Queue = make([]Row, 0, len(sorted))
	for _, e := range sorted {
		export.Queue = append(export.Queue, row(e.TrackID, e.Votes))
	}
	return export
}

// Export renders the export in the named format.
func Export(export *QueueExport, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatText, "":
		return ExportToText(export)
	case FormatMarkdown, "md":
		return ExportToMarkdown(export)
	case FormatCSV:
		return ExportToCSV(export)
	default:
		return nil, fmt.Errorf("%w: format %q (want one of %s)", shared.ErrInvalidArgument, format, strings.Join(Formats, ", "))
	}
}

// ExportToCSV writes one record per track with columns: Position, Status, TrackID, Name, Artists, Votes, Duration.
//
// The current track, when set, is position 0 with status "playing".
func ExportToCSV(export *QueueExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "Status", "TrackID", "Name", "Artists", "Votes", "Duration"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	record := func(pos int, status string, r Row) []string {
		return []string{
			strconv.Itoa(pos),
			status,
			r.TrackID,
			r.Name,
			strings.Join(r.Artists, "; "),
			strconv.Itoa(r.Votes),
			formatDuration(r.Duration),
		}
	}

	if export.CurrentTrack != nil {
		if err := writer.Write(record(0, "playing", *export.CurrentTrack)); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	for i, r := range export.Queue {
		if err := writer.Write(record(i+1, "queued", r)); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders a heading, the now-playing line, and a numbered queue.
func ExportToMarkdown(export *QueueExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Session %s\n\n", export.SessionID)
	if !export.CreatedAt.IsZero() {
		fmt.Fprintf(&buf, "**Created**: %s\n", export.CreatedAt.UTC().Format(time.RFC3339))
	}
	if export.DeviceID != "" {
		fmt.Fprintf(&buf, "**Device**: `%s`\n", export.DeviceID)
	}
	if export.CurrentTrack != nil {
		fmt.Fprintf(&buf, "**Now playing**: %s%s\n", export.CurrentTrack.Title(), durationSuffix(export.CurrentTrack.Duration))
	} else {
		buf.WriteString("**Now playing**: nothing\n")
	}
	fmt.Fprintf(&buf, "**Queued**: %d\n\n", len(export.Queue))

	buf.WriteString("## Queue\n\n")
	if len(export.Queue) == 0 {
		buf.WriteString("_The queue is empty._\n")
	}
	for i, r := range export.Queue {
		fmt.Fprintf(&buf, "%d. %s%s (%s)\n", i+1, r.Title(), durationSuffix(r.Duration), pluralVotes(r.Votes))
	}

	return buf.Bytes(), nil
}

// ExportToText renders the export as plain text.
func ExportToText(export *QueueExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Session: %s\n", export.SessionID)
	if export.CurrentTrack != nil {
		fmt.Fprintf(&buf, "Now playing: %s\n", export.CurrentTrack.Title())
	} else {
		buf.WriteString("Now playing: -\n")
	}
	fmt.Fprintf(&buf, "Queued: %d\n\n", len(export.Queue))

	for i, r := range export.Queue {
		fmt.Fprintf(&buf, "%d. %s [%s]\n", i+1, r.Title(), pluralVotes(r.Votes))
	}

	return buf.Bytes(), nil
}

// SessionsToText renders a session listing as an aligned table.
func SessionsToText(sessions []models.SessionSummary) ([]byte, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "ID\tCREATED\tCURRENT\tQUEUED")
	for _, s := range sessions {
		current := s.CurrentTrack
		if current == "" {
			current = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"), current, s.QueueLength)
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write table: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteExport renders the export and writes it to path.
//
// Defaults to {session}_queue.{ext} when path is empty.
func WriteExport(export *QueueExport, format, path string) (string, error) {
	data, err := Export(export, format)
	if err != nil {
		return "", err
	}

	if path == "" {
		path = fmt.Sprintf("%s_queue.%s", export.SessionID, extension(format))
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

func extension(format string) string {
	switch strings.ToLower(format) {
	case FormatMarkdown, "md":
		return "md"
	case FormatCSV:
		return "csv"
	default:
		return "txt"
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return shared.FormatDuration(d)
}

func durationSuffix(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return " [" + shared.FormatDuration(d) + "]"
}

func pluralVotes(n int) string {
	if n == 1 {
		return "1 vote"
	}
	return fmt.Sprintf("%d votes", n)
}
