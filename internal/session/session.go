// Package session owns the authoritative snapshot on the client side. One
// goroutine applies inbound snapshots and user intents in arrival order, so
// there is a single writer and no interleaving of two reducer applications.
package session

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/quizbattle/client/internal/channel"
	"github.com/quizbattle/client/internal/game"
	"github.com/quizbattle/client/internal/protocol"
)

// Renderer receives every applied projection. Implementations must not
// mutate state; an unknown phase arrives as view.PhaseKnown == false and
// should render as a degraded indicator, never a crash.
type Renderer interface {
	Render(view game.PlayerView)
}

type msg interface{ isSessionMsg() }

type snapshotMsg struct{ data json.RawMessage }

func (snapshotMsg) isSessionMsg() {}

type beginMsg struct {
	sessionID string
	reply     chan struct{}
}

func (beginMsg) isSessionMsg() {}

type intentMsg struct {
	run   func() game.Result
	reply chan game.Result
}

func (intentMsg) isSessionMsg() {}

type viewMsg struct{ reply chan game.PlayerView }

func (viewMsg) isSessionMsg() {}

type leaveMsg struct{ reply chan struct{} }

func (leaveMsg) isSessionMsg() {}

// Store holds the current GameState and everything derived from it.
type Store struct {
	ch       channel.Channel
	playerID string
	renderer Renderer
	// onExit fires after terminal teardown; the navigation collaborator
	// uses it to leave the session context.
	onExit func()

	inbox      chan msg
	state      *game.GameState
	activeID   string
	subscribed bool
	dispatcher *game.Dispatcher

	ctx    context.Context
	cancel context.CancelFunc
}

func NewStore(parent context.Context, ch channel.Channel, playerID string, renderer Renderer, onExit func()) *Store {
	ctx, cancel := context.WithCancel(parent)
	s := &Store{
		ch:       ch,
		playerID: playerID,
		renderer: renderer,
		onExit:   onExit,
		inbox:    make(chan msg, 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.dispatcher = game.NewDispatcher(ch, func() game.PlayerView {
		// Runs on the loop goroutine only, via intent handling below.
		return game.Project(s.state, s.playerID)
	})
	go s.loop()
	return s
}

// Begin activates a session id. Snapshots for any other id are dropped from
// here on. Beginning the same id twice is a no-op, so a duplicated new-game
// notification cannot disturb an established session.
func (s *Store) Begin(sessionID string) {
	reply := make(chan struct{})
	select {
	case s.inbox <- beginMsg{sessionID: sessionID, reply: reply}:
		<-reply
	case <-s.ctx.Done():
	}
}

// View returns the local participant's current projection.
func (s *Store) View() game.PlayerView {
	reply := make(chan game.PlayerView, 1)
	select {
	case s.inbox <- viewMsg{reply: reply}:
		return <-reply
	case <-s.ctx.Done():
		return game.Project(nil, s.playerID)
	}
}

// Leave tears the session down: unsubscribes, discards state, stops the
// loop. Late events for the torn-down session cannot resurrect it.
func (s *Store) Leave() {
	reply := make(chan struct{})
	select {
	case s.inbox <- leaveMsg{reply: reply}:
		<-reply
	case <-s.ctx.Done():
	}
}

func (s *Store) SubmitAnswer(index int) game.Result {
	return s.do(func() game.Result { return s.dispatcher.SubmitAnswer(index) })
}

func (s *Store) UsePowerup(powerup game.PowerUp) game.Result {
	return s.do(func() game.Result { return s.dispatcher.UsePowerup(powerup) })
}

func (s *Store) SelectCategory(category string) game.Result {
	return s.do(func() game.Result { return s.dispatcher.SelectCategory(category) })
}

func (s *Store) SetBotLevel(level game.BotLevel) game.Result {
	return s.do(func() game.Result { return s.dispatcher.SetBotLevel(level) })
}

// do runs an intent on the loop goroutine and blocks for its result, which
// keeps dispatch synchronous from the caller's perspective while preserving
// the single thread of control.
func (s *Store) do(run func() game.Result) game.Result {
	reply := make(chan game.Result, 1)
	select {
	case s.inbox <- intentMsg{run: run, reply: reply}:
		return <-reply
	case <-s.ctx.Done():
		return game.Result{Reason: game.NoopSendFailed}
	}
}

func (s *Store) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.teardown()
			return
		case m := <-s.inbox:
			switch m := m.(type) {
			case beginMsg:
				s.begin(m.sessionID)
				close(m.reply)
			case snapshotMsg:
				s.apply(m.data)
			case intentMsg:
				m.reply <- m.run()
			case viewMsg:
				m.reply <- game.Project(s.state, s.playerID)
			case leaveMsg:
				s.teardown()
				close(m.reply)
				s.cancel()
				return
			}
		}
	}
}

func (s *Store) begin(sessionID string) {
	if s.activeID == sessionID && s.subscribed {
		return
	}
	s.activeID = sessionID
	s.state = nil
	if !s.subscribed {
		s.ch.On(protocol.EventGameUpdate, func(data json.RawMessage) {
			select {
			case s.inbox <- snapshotMsg{data: data}:
			case <-s.ctx.Done():
			}
		})
		s.subscribed = true
	}
	log.Info().Str("session", sessionID).Msg("session active")
}

func (s *Store) apply(data json.RawMessage) {
	var snap game.GameState
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Msg("dropping malformed snapshot")
		return
	}
	if snap.ID != s.activeID {
		log.Debug().Str("session", snap.ID).Str("active", s.activeID).Msg("dropping cross-session snapshot")
		return
	}
	next, outcome := game.Reduce(s.state, snap)
	if !outcome.Accepted() {
		return
	}
	s.state = next

	view := game.Project(s.state, s.playerID)
	s.dispatcher.Observe(view)
	if !view.PhaseKnown {
		log.Warn().Str("phase", string(view.Phase)).Msg("unknown phase, rendering degraded")
	}
	s.renderer.Render(view)

	if s.state.Phase.Terminal() {
		s.teardown()
		if s.onExit != nil {
			s.onExit()
		}
	}
}

// teardown unsubscribes and drops state in one step on the loop goroutine,
// so no late event can observe a half-dismantled session.
func (s *Store) teardown() {
	if s.subscribed {
		s.ch.Off(protocol.EventGameUpdate)
		s.subscribed = false
	}
	s.state = nil
	s.activeID = ""
}
