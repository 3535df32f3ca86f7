package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/quizbattle/client/internal/channel"
	"github.com/quizbattle/client/internal/game"
	"github.com/quizbattle/client/internal/protocol"
)

// fakeChannel delivers events synchronously, standing in for the websocket
// read loop's one-at-a-time dispatch.
type fakeChannel struct {
	mu       sync.Mutex
	handlers map[string]channel.Handler
	emitted  []string
	onCalls  int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string]channel.Handler)}
}

func (f *fakeChannel) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, event)
	return nil
}

func (f *fakeChannel) On(event string, handler channel.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = handler
	f.onCalls++
}

func (f *fakeChannel) Off(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, event)
}

func (f *fakeChannel) Close() error { return nil }

func (f *fakeChannel) push(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	f.mu.Lock()
	handler := f.handlers[event]
	f.mu.Unlock()
	if handler != nil {
		handler(data)
	}
}

func (f *fakeChannel) emittedEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.emitted))
	copy(out, f.emitted)
	return out
}

type fakeRenderer struct {
	mu    sync.Mutex
	views []game.PlayerView
}

func (r *fakeRenderer) Render(v game.PlayerView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *fakeRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

type exitFlag struct {
	mu    sync.Mutex
	fired int
}

func (e *exitFlag) fire() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fired++
}

func (e *exitFlag) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fired
}

func snapshot(id string, phase game.Phase, players ...game.Player) game.GameState {
	return game.GameState{ID: id, Phase: phase, Players: game.NewRoster(players...)}
}

func TestStoreAppliesSnapshots(t *testing.T) {
	ch := newFakeChannel()
	rend := &fakeRenderer{}
	store := NewStore(context.Background(), ch, "p1", rend, nil)
	defer store.Leave()

	store.Begin("g1")
	ch.push(t, protocol.EventGameUpdate, snapshot("g1", game.PhaseAwaitingAnswers,
		game.Player{ID: "p1", Name: "Amy", Answer: game.NoAnswer}))

	// View round-trips through the store loop, so the snapshot above is
	// guaranteed to be applied by the time it returns.
	v := store.View()
	if v.Phase != game.PhaseAwaitingAnswers {
		t.Fatalf("expected awaiting_answers, got %s", v.Phase)
	}
	if v.Name != "Amy" {
		t.Fatalf("expected the local player's name, got %q", v.Name)
	}
	if rend.count() != 1 {
		t.Fatalf("expected one render per applied snapshot, got %d", rend.count())
	}
}

func TestStoreDropsCrossSessionSnapshots(t *testing.T) {
	ch := newFakeChannel()
	rend := &fakeRenderer{}
	store := NewStore(context.Background(), ch, "p1", rend, nil)
	defer store.Leave()

	// The lobby handed over g2; a final event from superseded g1 is still
	// in flight and must not leak in.
	store.Begin("g2")
	ch.push(t, protocol.EventGameUpdate, snapshot("g1", game.PhaseGameEnded))

	v := store.View()
	if v.SessionID == "g1" {
		t.Fatal("a snapshot from another session must be dropped")
	}
	if rend.count() != 0 {
		t.Fatal("dropped snapshots must not render")
	}

	ch.push(t, protocol.EventGameUpdate, snapshot("g2", game.PhaseGameStarted))
	if v := store.View(); v.SessionID != "g2" {
		t.Fatalf("expected g2 to apply, got %q", v.SessionID)
	}
}

func TestStoreBeginIsIdempotent(t *testing.T) {
	ch := newFakeChannel()
	rend := &fakeRenderer{}
	store := NewStore(context.Background(), ch, "p1", rend, nil)
	defer store.Leave()

	store.Begin("g1")
	ch.push(t, protocol.EventGameUpdate, snapshot("g1", game.PhaseAwaitingAnswers))
	store.Begin("g1")

	// The duplicate Begin must not discard the applied state.
	if v := store.View(); v.Phase != game.PhaseAwaitingAnswers {
		t.Fatalf("duplicate Begin should not reset state, got phase %s", v.Phase)
	}
	if ch.onCalls != 1 {
		t.Fatalf("expected a single subscription, got %d", ch.onCalls)
	}
}

func TestStoreIntentsFlowThroughDispatcher(t *testing.T) {
	ch := newFakeChannel()
	store := NewStore(context.Background(), ch, "p1", &fakeRenderer{}, nil)
	defer store.Leave()

	store.Begin("g1")
	ch.push(t, protocol.EventGameUpdate, game.GameState{
		ID: "g1", Phase: game.PhaseAwaitingAnswers,
		QuestionOptions: []string{"a", "b", "c", "d"},
		Players:         game.NewRoster(game.Player{ID: "p1", Answer: game.NoAnswer}),
	})

	if r := store.SubmitAnswer(2); !r.Sent {
		t.Fatalf("answer should be sent, got reason %s", r.Reason)
	}
	if r := store.SubmitAnswer(3); r.Sent {
		t.Fatal("the round is locked after one answer")
	}
	events := ch.emittedEvents()
	if len(events) != 1 || events[0] != protocol.EventSubmitAnswer {
		t.Fatalf("expected exactly one submit_answer, got %v", events)
	}
}

func TestStoreTerminalPhaseTearsDown(t *testing.T) {
	ch := newFakeChannel()
	exit := &exitFlag{}
	store := NewStore(context.Background(), ch, "p1", &fakeRenderer{}, exit.fire)
	defer store.Leave()

	store.Begin("g1")
	ch.push(t, protocol.EventGameUpdate, snapshot("g1", game.PhaseGameExit))

	// Synchronize with the loop before inspecting side effects.
	_ = store.View()
	if exit.count() != 1 {
		t.Fatalf("expected one exit callback, got %d", exit.count())
	}

	// The subscription is gone, so a late event for the dead session
	// cannot resurrect it.
	ch.push(t, protocol.EventGameUpdate, snapshot("g1", game.PhaseGameStarted))
	if v := store.View(); v.SessionID != "" {
		t.Fatalf("expected a torn-down session, got %q", v.SessionID)
	}
}

func TestStoreRendersUnknownPhase(t *testing.T) {
	ch := newFakeChannel()
	rend := &fakeRenderer{}
	store := NewStore(context.Background(), ch, "p1", rend, nil)
	defer store.Leave()

	store.Begin("g1")
	ch.push(t, protocol.EventGameUpdate, snapshot("g1", game.Phase("lightning_round")))

	v := store.View()
	if v.PhaseKnown {
		t.Fatal("unlisted phase should project as unknown")
	}
	if rend.count() != 1 {
		t.Fatal("an unknown phase still renders, as a degraded view")
	}
}
