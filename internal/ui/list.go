package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/queuetify/internal/models"
)

var (
	_ list.Item = trackItem{}
	_ list.Item = deviceItem{}
)

// trackItem wraps [models.TrackInfo] to implement [list.Item].
type trackItem struct {
	track  models.TrackInfo
	voted  bool
	queued bool
}

func (i trackItem) FilterValue() string { return i.track.Name }
func (i trackItem) Title() string {
	if i.voted {
		return styles.ok.Render("♥ ") + i.track.Name
	}
	return i.track.Name
}
func (i trackItem) Description() string {
	desc := strings.Join(i.track.Artists, ", ")
	if i.queued {
		desc = fmt.Sprintf("%s • %s", desc, pluralVotes(i.track.Votes))
	}
	return desc
}

// deviceItem wraps [models.Device] to implement [list.Item].
type deviceItem struct {
	device models.Device
}

func (i deviceItem) FilterValue() string { return i.device.Name }
func (i deviceItem) Title() string {
	if i.device.IsActive {
		return i.device.Name + " (active)"
	}
	return i.device.Name
}
func (i deviceItem) Description() string { return i.device.Type }

func pluralVotes(n int) string {
	if n == 1 {
		return "1 vote"
	}
	return fmt.Sprintf("%d votes", n)
}

func newList(title string, items []list.Item, width, height int) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), width, height)
	l.Title = title
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	return l
}
