package game

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Phase is the stage of a session as asserted by the authority. The set
// below is closed from the client's point of view, but values outside it
// are still stored and surfaced as unknown rather than rejected.
type Phase string

const (
	PhaseGameStarted       Phase = "game_started"
	PhaseBotLevelSelection Phase = "bot_level_selection"
	PhaseCategorySelection Phase = "category_selection"
	PhaseCategoryResults   Phase = "category_results"
	PhaseAwaitingAnswers   Phase = "awaiting_answers"
	PhaseRoundEnded        Phase = "round_ended"
	PhaseGameEnded         Phase = "game_ended"
	PhaseGameExit          Phase = "game_exit"
)

// Known reports whether the phase is part of the closed enumeration.
func (p Phase) Known() bool {
	switch p {
	case PhaseGameStarted, PhaseBotLevelSelection, PhaseCategorySelection,
		PhaseCategoryResults, PhaseAwaitingAnswers, PhaseRoundEnded,
		PhaseGameEnded, PhaseGameExit:
		return true
	}
	return false
}

// Terminal reports whether no further snapshots may be processed.
func (p Phase) Terminal() bool { return p == PhaseGameExit }

// Discloses reports whether the correct answer may be shown in this phase.
func (p Phase) Discloses() bool {
	return p == PhaseRoundEnded || p == PhaseGameEnded
}

type PowerUp string

const (
	PowerUpFiftyFifty   PowerUp = "fifty_fifty"
	PowerUpCallFriend   PowerUp = "call_a_friend"
	PowerUpDoublePoints PowerUp = "double_points"
)

// PowerUps lists every powerup a player starts the session with.
var PowerUps = []PowerUp{PowerUpFiftyFifty, PowerUpCallFriend, PowerUpDoublePoints}

type BotLevel string

const (
	BotLevelEasy   BotLevel = "easy"
	BotLevelMedium BotLevel = "medium"
	BotLevelHard   BotLevel = "hard"
)

// NoAnswer is the sentinel for a player who has not answered this round.
const NoAnswer = -1

type Player struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Score              int       `json:"score"`
	Answer             int       `json:"answer"`
	VisibleOptions     []bool    `json:"visible_options,omitempty"`
	UsedPowerups       []PowerUp `json:"used_powerups,omitempty"`
	DoublePointsActive bool      `json:"double_points_active,omitempty"`
}

func (p Player) HasAnswered() bool { return p.Answer != NoAnswer }

// OptionVisible fails open: a missing visibility array never hides content.
func (p Player) OptionVisible(index int) bool {
	if index < 0 || index >= len(p.VisibleOptions) {
		return true
	}
	return p.VisibleOptions[index]
}

func (p Player) HasUsed(powerup PowerUp) bool {
	for _, used := range p.UsedPowerups {
		if used == powerup {
			return true
		}
	}
	return false
}

func (p *Player) UnmarshalJSON(b []byte) error {
	type alias Player
	a := alias{Answer: NoAnswer}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*p = Player(a)
	return nil
}

// Roster is the player mapping of a snapshot. It keeps the order in which
// players first appear in the wire document so that leaderboard tie-breaks
// are reproducible across clients fed the same input.
type Roster struct {
	byID  map[string]Player
	order []string
}

func NewRoster(players ...Player) Roster {
	var r Roster
	for _, p := range players {
		r.Add(p)
	}
	return r
}

// Add inserts or replaces a player, preserving first-seen order.
func (r *Roster) Add(p Player) {
	if r.byID == nil {
		r.byID = make(map[string]Player)
	}
	if _, seen := r.byID[p.ID]; !seen {
		r.order = append(r.order, p.ID)
	}
	r.byID[p.ID] = p
}

func (r Roster) Get(id string) (Player, bool) {
	p, ok := r.byID[id]
	return p, ok
}

func (r Roster) Len() int { return len(r.byID) }

// IDs returns player ids in first-seen order.
func (r Roster) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Roster) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*r = Roster{}
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("roster: expected object, got %v", tok)
	}
	*r = Roster{byID: make(map[string]Player)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("roster: expected string key, got %v", keyTok)
		}
		var p Player
		if err := dec.Decode(&p); err != nil {
			return err
		}
		if p.ID == "" {
			p.ID = id
		}
		r.Add(p)
	}
	return nil
}

func (r Roster) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range r.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.byID[id])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// GameState is one authoritative snapshot of a session. It is replaced
// wholesale on every accepted update and never patched in place.
type GameState struct {
	ID              string   `json:"id"`
	Phase           Phase    `json:"phase"`
	Category        string   `json:"category,omitempty"`
	QuestionText    string   `json:"question_text"`
	QuestionOptions []string `json:"question_options"`
	CorrectAnswer   *int     `json:"correct_answer,omitempty"`
	TimeRemaining   int      `json:"time_remaining"`
	Players         Roster   `json:"players"`
}

func (s *GameState) Player(id string) (Player, bool) {
	if s == nil {
		return Player{}, false
	}
	return s.Players.Get(id)
}
