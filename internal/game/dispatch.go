package game

import (
	"github.com/quizbattle/client/internal/protocol"
)

// Emitter is the outgoing half of the channel the dispatcher needs.
type Emitter interface {
	Emit(event string, payload any) error
}

// NoopReason explains why an intent produced no outbound message. These are
// expected UI-guard outcomes, not faults.
type NoopReason string

const (
	NoopAlreadyAnswered NoopReason = "already_answered"
	NoopAlreadySelected NoopReason = "already_selected"
	NoopPowerupUsed     NoopReason = "powerup_used"
	NoopWrongPhase      NoopReason = "wrong_phase"
	NoopSendFailed      NoopReason = "send_failed"
)

type Result struct {
	Sent   bool
	Reason NoopReason
	// HiddenOption flags an answer that referred to an option eliminated by
	// fifty-fifty. The intent is still forwarded; the authority owns the
	// final verdict.
	HiddenOption bool
}

func sent() Result { return Result{Sent: true} }
func noop(reason NoopReason) Result { return Result{Reason: reason} }

// Dispatcher converts user intent into at-most-one protocol message per
// round per action kind. Validation reads the current projection; the
// per-round latches cover the window between an accepted emit and the next
// snapshot reflecting it, so re-entrant calls need no server acknowledgement
// to be rejected. The dispatcher keeps no queue: accepted intents are
// emitted synchronously.
type Dispatcher struct {
	emitter Emitter
	view    func() PlayerView

	sessionID string
	lastPhase Phase

	answered       bool
	categoryPicked bool
	botLevelSet    bool
	usedLocal      map[PowerUp]bool
}

// NewDispatcher wires a dispatcher to an emitter and a projection source.
// The view function must return the projection of the current snapshot for
// the local participant.
func NewDispatcher(emitter Emitter, view func() PlayerView) *Dispatcher {
	return &Dispatcher{
		emitter:   emitter,
		view:      view,
		usedLocal: make(map[PowerUp]bool),
	}
}

// Observe tells the dispatcher a snapshot was applied so it can retire
// latches that belong to a finished phase instance. Entering a selection
// phase or a new answering round opens a fresh at-most-once window; a new
// session id resets everything, including powerup bookkeeping.
func (d *Dispatcher) Observe(v PlayerView) {
	if v.SessionID != d.sessionID {
		d.sessionID = v.SessionID
		d.lastPhase = ""
		d.answered = false
		d.categoryPicked = false
		d.botLevelSet = false
		d.usedLocal = make(map[PowerUp]bool)
	}
	if v.Phase == d.lastPhase {
		return
	}
	switch v.Phase {
	case PhaseAwaitingAnswers:
		d.answered = false
	case PhaseCategorySelection:
		d.categoryPicked = false
	case PhaseBotLevelSelection:
		d.botLevelSet = false
	}
	d.lastPhase = v.Phase
}

// SubmitAnswer forwards an answer index for the current round. Once an
// answer was accepted the round is locked; further submissions are no-ops.
// An index pointing at a hidden option is flagged but still forwarded.
func (d *Dispatcher) SubmitAnswer(index int) Result {
	v := d.view()
	if v.Phase != PhaseAwaitingAnswers {
		return noop(NoopWrongPhase)
	}
	if d.answered || v.HasAnswered {
		return noop(NoopAlreadyAnswered)
	}
	hidden := false
	if index >= 0 && index < len(v.Options) && !v.Options[index].Visible {
		hidden = true
	}
	if err := d.emitter.Emit(protocol.EventSubmitAnswer, protocol.SubmitAnswer{Answer: index}); err != nil {
		return noop(NoopSendFailed)
	}
	d.answered = true
	r := sent()
	r.HiddenOption = hidden
	return r
}

// UsePowerup forwards a powerup activation. A powerup is single-use for the
// whole session and only usable while answers are open.
func (d *Dispatcher) UsePowerup(powerup PowerUp) Result {
	v := d.view()
	if v.Phase != PhaseAwaitingAnswers {
		return noop(NoopWrongPhase)
	}
	if d.usedLocal[powerup] {
		return noop(NoopPowerupUsed)
	}
	for _, st := range v.Powerups {
		if st.Powerup == powerup && !st.Available {
			return noop(NoopPowerupUsed)
		}
	}
	if err := d.emitter.Emit(protocol.EventUsePowerup, protocol.UsePowerup{Powerup: string(powerup)}); err != nil {
		return noop(NoopSendFailed)
	}
	d.usedLocal[powerup] = true
	return sent()
}

// SelectCategory forwards a topic pick; one per category_selection instance.
func (d *Dispatcher) SelectCategory(category string) Result {
	v := d.view()
	if v.Phase != PhaseCategorySelection {
		return noop(NoopWrongPhase)
	}
	if d.categoryPicked {
		return noop(NoopAlreadySelected)
	}
	if err := d.emitter.Emit(protocol.EventSelectCategory, protocol.SelectCategory{Category: category}); err != nil {
		return noop(NoopSendFailed)
	}
	d.categoryPicked = true
	return sent()
}

// SetBotLevel forwards a bot difficulty pick; one per selection instance.
func (d *Dispatcher) SetBotLevel(level BotLevel) Result {
	v := d.view()
	if v.Phase != PhaseBotLevelSelection {
		return noop(NoopWrongPhase)
	}
	if d.botLevelSet {
		return noop(NoopAlreadySelected)
	}
	if err := d.emitter.Emit(protocol.EventSetBotLevel, protocol.SetBotLevel{Level: string(level)}); err != nil {
		return noop(NoopSendFailed)
	}
	d.botLevelSet = true
	return sent()
}
