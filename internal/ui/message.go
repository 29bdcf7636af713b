package ui

import (
	"encoding/json"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/queuetify/internal/models"
	"github.com/desertthunder/queuetify/internal/shared"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgStateUpdate MsgKind = iota
	MsgSearchResult
	MsgDevices
	MsgTransferResponse
	MsgVotedTracks
	MsgShutdown
	MsgIgnored
	MsgDisconnected
)

// envelope is the client-side view of [models.Envelope] with the payload left undecoded.
type envelope struct {
	Type    models.EnvelopeType `json:"type"`
	Payload json.RawMessage     `json:"payload"`
}

// decodeEnvelope turns one server push into the matching [Msg].
func decodeEnvelope(data []byte) (Msg, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Msg{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	switch env.Type {
	case models.StateUpdateMsg:
		var s models.StateSnapshot
		if err := decodePayload(env.Payload, &s); err != nil {
			return Msg{}, err
		}
		return stateUpdateMsg(s), nil
	case models.SearchResultMsg:
		var tracks []models.TrackInfo
		if err := decodePayload(env.Payload, &tracks); err != nil {
			return Msg{}, err
		}
		return searchResultMsg(tracks), nil
	case models.DevicesMsg:
		var devices []models.Device
		if err := decodePayload(env.Payload, &devices); err != nil {
			return Msg{}, err
		}
		return devicesMsg(devices), nil
	case models.TransferResponseMsg:
		var resp models.TransferResponse
		if err := decodePayload(env.Payload, &resp); err != nil {
			return Msg{}, err
		}
		return transferResponseMsg(resp), nil
	case models.VotedTracksMsg:
		var ids []string
		if err := decodePayload(env.Payload, &ids); err != nil {
			return Msg{}, err
		}
		return votedTracksMsg(ids), nil
	case models.ShutdownMsg:
		return Msg{kind: MsgShutdown}, nil
	default:
		return Msg{}, fmt.Errorf("%w: unknown envelope type %q", shared.ErrInvalidInput, env.Type)
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return nil
}

// stateUpdateMsg is the constructor for [MsgStateUpdate]
func stateUpdateMsg(s models.StateSnapshot) Msg {
	return Msg{kind: MsgStateUpdate, data: s}
}

// searchResultMsg is the constructor for [MsgSearchResult]
func searchResultMsg(tracks []models.TrackInfo) Msg {
	return Msg{kind: MsgSearchResult, data: tracks}
}

// devicesMsg is the constructor for [MsgDevices]
func devicesMsg(devices []models.Device) Msg {
	return Msg{kind: MsgDevices, data: devices}
}

// transferResponseMsg is the constructor for [MsgTransferResponse]
func transferResponseMsg(resp models.TransferResponse) Msg {
	return Msg{kind: MsgTransferResponse, data: resp}
}

// votedTracksMsg is the constructor for [MsgVotedTracks]
func votedTracksMsg(ids []string) Msg {
	return Msg{kind: MsgVotedTracks, data: ids}
}

// disconnectedMsg is the constructor for [MsgDisconnected]
func disconnectedMsg(err error) Msg {
	return Msg{kind: MsgDisconnected, data: err}
}
