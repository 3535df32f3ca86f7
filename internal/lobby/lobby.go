// Package lobby bridges matchmaking into a running session. It keeps a
// lightweight roster view while waiting and hands the session id over
// exactly once when the authority announces a new game.
package lobby

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/quizbattle/client/internal/channel"
	"github.com/quizbattle/client/internal/protocol"
)

// View is what a lobby screen needs and nothing more.
type View struct {
	Players         []string
	TimeRemaining   int
	ShouldStartGame bool
}

type Handoff struct {
	ch        channel.Channel
	onUpdate  func(View)
	onSession func(sessionID string)

	mu       sync.Mutex
	view     View
	lastGame string
}

// NewHandoff subscribes to lobby traffic. onUpdate fires per roster update;
// onSession fires once per announced game id, after the join intent was
// emitted.
func NewHandoff(ch channel.Channel, onUpdate func(View), onSession func(sessionID string)) *Handoff {
	h := &Handoff{ch: ch, onUpdate: onUpdate, onSession: onSession}
	ch.On(protocol.EventLobbyUpdate, h.handleUpdate)
	ch.On(protocol.EventNewGame, h.handleNewGame)
	return h
}

// Join announces the local participant to the lobby.
func (h *Handoff) Join() error {
	return h.ch.Emit(protocol.EventJoinLobby, struct{}{})
}

// View returns the last roster update.
func (h *Handoff) View() View {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.view
}

// Stop unsubscribes from lobby traffic.
func (h *Handoff) Stop() {
	h.ch.Off(protocol.EventLobbyUpdate)
	h.ch.Off(protocol.EventNewGame)
}

func (h *Handoff) handleUpdate(data json.RawMessage) {
	var upd protocol.LobbyUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		log.Warn().Err(err).Msg("dropping malformed lobby update")
		return
	}
	v := View{
		Players:         upd.Players,
		TimeRemaining:   upd.TimeRemaining,
		ShouldStartGame: upd.ShouldStartGame,
	}
	h.mu.Lock()
	h.view = v
	h.mu.Unlock()
	if h.onUpdate != nil {
		h.onUpdate(v)
	}
}

// handleNewGame joins the announced session. A repeated announcement for the
// same id is a no-op, never a double join.
func (h *Handoff) handleNewGame(data json.RawMessage) {
	var ng protocol.NewGame
	if err := json.Unmarshal(data, &ng); err != nil {
		log.Warn().Err(err).Msg("dropping malformed new game event")
		return
	}
	h.mu.Lock()
	if ng.ID == h.lastGame {
		h.mu.Unlock()
		return
	}
	h.lastGame = ng.ID
	h.view = View{}
	h.mu.Unlock()

	if err := h.ch.Emit(protocol.EventJoinGame, protocol.JoinGame{GameID: ng.ID}); err != nil {
		log.Error().Err(err).Str("game", ng.ID).Msg("join game failed")
		return
	}
	log.Info().Str("game", ng.ID).Msg("joining game")
	if h.onSession != nil {
		h.onSession(ng.ID)
	}
}
