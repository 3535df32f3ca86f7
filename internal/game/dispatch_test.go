package game

import (
	"errors"
	"testing"

	"github.com/quizbattle/client/internal/protocol"
)

type recordingEmitter struct {
	events []string
	fail   error
}

func (e *recordingEmitter) Emit(event string, payload any) error {
	if e.fail != nil {
		return e.fail
	}
	e.events = append(e.events, event)
	return nil
}

// viewSource lets a test swap the projection the dispatcher validates
// against mid-scenario.
type viewSource struct{ v PlayerView }

func (s *viewSource) set(v PlayerView) { s.v = v }
func (s *viewSource) get() PlayerView  { return s.v }

func answeringView(sessionID string) PlayerView {
	v := Project(&GameState{
		ID: sessionID, Phase: PhaseAwaitingAnswers,
		QuestionOptions: []string{"a", "b", "c", "d"},
		Players:         NewRoster(Player{ID: "p1", Answer: NoAnswer}),
	}, "p1")
	return v
}

func TestSubmitAnswerOncePerRound(t *testing.T) {
	em := &recordingEmitter{}
	src := &viewSource{}
	d := NewDispatcher(em, src.get)

	src.set(answeringView("g1"))
	d.Observe(src.v)

	if r := d.SubmitAnswer(1); !r.Sent {
		t.Fatalf("first answer should be sent, got reason %s", r.Reason)
	}
	// Second call before any snapshot reflects the first one.
	if r := d.SubmitAnswer(2); r.Sent || r.Reason != NoopAlreadyAnswered {
		t.Fatalf("second answer should be rejected as already_answered, got %+v", r)
	}
	if len(em.events) != 1 || em.events[0] != protocol.EventSubmitAnswer {
		t.Fatalf("exactly one submit_answer should be on the wire, got %v", em.events)
	}
}

func TestSubmitAnswerUnlocksNextRound(t *testing.T) {
	em := &recordingEmitter{}
	src := &viewSource{}
	d := NewDispatcher(em, src.get)

	src.set(answeringView("g1"))
	d.Observe(src.v)
	d.SubmitAnswer(0)

	// Round ends, then a new answering round begins.
	src.set(Project(&GameState{ID: "g1", Phase: PhaseRoundEnded}, "p1"))
	d.Observe(src.v)
	src.set(answeringView("g1"))
	d.Observe(src.v)

	if r := d.SubmitAnswer(3); !r.Sent {
		t.Fatalf("a new round should accept a new answer, got reason %s", r.Reason)
	}
	if len(em.events) != 2 {
		t.Fatalf("expected two answers across two rounds, got %d", len(em.events))
	}
}

func TestSubmitAnswerRespectsServerState(t *testing.T) {
	em := &recordingEmitter{}
	src := &viewSource{}
	d := NewDispatcher(em, src.get)

	// The snapshot already records an answer, e.g. after a reconnect.
	v := Project(&GameState{
		ID: "g1", Phase: PhaseAwaitingAnswers,
		QuestionOptions: []string{"a", "b"},
		Players:         NewRoster(Player{ID: "p1", Answer: 0}),
	}, "p1")
	src.set(v)
	d.Observe(v)

	if r := d.SubmitAnswer(1); r.Sent || r.Reason != NoopAlreadyAnswered {
		t.Fatalf("server-recorded answer should lock the round, got %+v", r)
	}
}

func TestSubmitAnswerWrongPhase(t *testing.T) {
	em := &recordingEmitter{}
	src := &viewSource{v: Project(&GameState{ID: "g1", Phase: PhaseRoundEnded}, "p1")}
	d := NewDispatcher(em, src.get)
	d.Observe(src.v)

	if r := d.SubmitAnswer(0); r.Sent || r.Reason != NoopWrongPhase {
		t.Fatalf("answers outside awaiting_answers should be no-ops, got %+v", r)
	}
	if len(em.events) != 0 {
		t.Fatal("nothing should reach the wire")
	}
}

func TestSubmitAnswerFlagsHiddenOption(t *testing.T) {
	em := &recordingEmitter{}
	src := &viewSource{}
	d := NewDispatcher(em, src.get)

	v := Project(&GameState{
		ID: "g1", Phase: PhaseAwaitingAnswers,
		QuestionOptions: []string{"a", "b", "c", "d"},
		Players: NewRoster(Player{
			ID: "p1", Answer: NoAnswer,
			VisibleOptions: []bool{true, false, false, true},
		}),
	}, "p1")
	src.set(v)
	d.Observe(v)

	r := d.SubmitAnswer(1)
	if !r.Sent {
		t.Fatalf("a hidden-option answer is still forwarded, got reason %s", r.Reason)
	}
	if !r.HiddenOption {
		t.Fatal("the result should flag the hidden option")
	}
}

func TestSubmitAnswerEmitFailureLeavesRoundOpen(t *testing.T) {
	em := &recordingEmitter{fail: errors.New("socket down")}
	src := &viewSource{v: answeringView("g1")}
	d := NewDispatcher(em, src.get)
	d.Observe(src.v)

	if r := d.SubmitAnswer(0); r.Sent || r.Reason != NoopSendFailed {
		t.Fatalf("expected send_failed, got %+v", r)
	}

	// Transport recovers; the answer was never accepted, so retry works.
	em.fail = nil
	if r := d.SubmitAnswer(0); !r.Sent {
		t.Fatalf("retry after a failed send should go through, got reason %s", r.Reason)
	}
}

func TestUsePowerupOncePerSession(t *testing.T) {
	em := &recordingEmitter{}
	src := &viewSource{v: answeringView("g1")}
	d := NewDispatcher(em, src.get)
	d.Observe(src.v)

	if r := d.UsePowerup(PowerUpFiftyFifty); !r.Sent {
		t.Fatalf("first use should be sent, got reason %s", r.Reason)
	}
	if r := d.UsePowerup(PowerUpFiftyFifty); r.Sent || r.Reason != NoopPowerupUsed {
		t.Fatalf("second use should be rejected, got %+v", r)
	}

	// The latch survives into later rounds; powerups are per session.
	src.set(Project(&GameState{ID: "g1", Phase: PhaseRoundEnded}, "p1"))
	d.Observe(src.v)
	src.set(answeringView("g1"))
	d.Observe(src.v)
	if r := d.UsePowerup(PowerUpFiftyFifty); r.Sent {
		t.Fatal("a powerup must stay spent across rounds")
	}
	if r := d.UsePowerup(PowerUpDoublePoints); !r.Sent {
		t.Fatalf("a different powerup should still work, got reason %s", r.Reason)
	}
}

func TestUsePowerupRespectsServerState(t *testing.T) {
	em := &recordingEmitter{}
	v := Project(&GameState{
		ID: "g1", Phase: PhaseAwaitingAnswers,
		Players: NewRoster(Player{
			ID: "p1", Answer: NoAnswer,
			UsedPowerups: []PowerUp{PowerUpCallFriend},
		}),
	}, "p1")
	src := &viewSource{v: v}
	d := NewDispatcher(em, src.get)
	d.Observe(v)

	if r := d.UsePowerup(PowerUpCallFriend); r.Sent || r.Reason != NoopPowerupUsed {
		t.Fatalf("server-recorded use should block the powerup, got %+v", r)
	}
}

func TestSelectCategoryOncePerInstance(t *testing.T) {
	em := &recordingEmitter{}
	src := &viewSource{v: Project(&GameState{
		ID: "g1", Phase: PhaseCategorySelection,
		QuestionOptions: []string{"Geography", "Science"},
	}, "p1")}
	d := NewDispatcher(em, src.get)
	d.Observe(src.v)

	if r := d.SelectCategory("Science"); !r.Sent {
		t.Fatalf("first pick should be sent, got reason %s", r.Reason)
	}
	if r := d.SelectCategory("Geography"); r.Sent || r.Reason != NoopAlreadySelected {
		t.Fatalf("second pick should be rejected, got %+v", r)
	}
}

func TestSetBotLevelOncePerInstance(t *testing.T) {
	em := &recordingEmitter{}
	src := &viewSource{v: Project(&GameState{ID: "g1", Phase: PhaseBotLevelSelection}, "p1")}
	d := NewDispatcher(em, src.get)
	d.Observe(src.v)

	if r := d.SetBotLevel(BotLevelHard); !r.Sent {
		t.Fatalf("first pick should be sent, got reason %s", r.Reason)
	}
	if r := d.SetBotLevel(BotLevelEasy); r.Sent || r.Reason != NoopAlreadySelected {
		t.Fatalf("second pick should be rejected, got %+v", r)
	}
}

func TestObserveNewSessionResetsEverything(t *testing.T) {
	em := &recordingEmitter{}
	src := &viewSource{v: answeringView("g1")}
	d := NewDispatcher(em, src.get)
	d.Observe(src.v)

	d.SubmitAnswer(0)
	d.UsePowerup(PowerUpDoublePoints)

	// A fresh session grants fresh powerups and an open round.
	src.set(answeringView("g2"))
	d.Observe(src.v)

	if r := d.SubmitAnswer(1); !r.Sent {
		t.Fatalf("new session should accept an answer, got reason %s", r.Reason)
	}
	if r := d.UsePowerup(PowerUpDoublePoints); !r.Sent {
		t.Fatalf("new session should restore powerups, got reason %s", r.Reason)
	}
}
