package game

import "sort"

// Option is one answer choice as a single participant sees it.
type Option struct {
	Index   int
	Text    string
	Visible bool
}

type PowerupStatus struct {
	Powerup   PowerUp
	Available bool
}

type Standing struct {
	PlayerID string
	Name     string
	Score    int
	You      bool
}

// PlayerView is everything one participant may render or act on. It is a
// read-only projection; rendering code never touches GameState directly.
type PlayerView struct {
	SessionID     string
	Phase         Phase
	PhaseKnown    bool
	Category      string
	QuestionText  string
	Options       []Option
	TimeRemaining int

	Name               string
	Score              int
	Answer             int
	HasAnswered        bool
	Powerups           []PowerupStatus
	DoublePointsActive bool

	CorrectDisclosed bool
	CorrectAnswer    int

	Leaderboard []Standing
	Rank        int
	IsWinner    bool
}

// Project derives the participant-scoped view of a snapshot. It is pure and
// safe to recompute on every update. A nil state renders as the game_started
// phase by convention, so callers never need a separate "no state yet" path.
func Project(s *GameState, playerID string) PlayerView {
	v := PlayerView{
		Phase:         PhaseGameStarted,
		PhaseKnown:    true,
		Answer:        NoAnswer,
		CorrectAnswer: NoAnswer,
	}
	if s == nil {
		return v
	}

	v.SessionID = s.ID
	v.Phase = s.Phase
	v.PhaseKnown = s.Phase.Known()
	v.Category = s.Category
	v.QuestionText = s.QuestionText
	v.TimeRemaining = s.TimeRemaining

	me, _ := s.Players.Get(playerID)
	v.Name = me.Name
	v.Score = me.Score
	if me.ID != "" {
		v.Answer = me.Answer
		v.HasAnswered = me.HasAnswered()
		v.DoublePointsActive = me.DoublePointsActive
	}

	v.Options = make([]Option, len(s.QuestionOptions))
	for i, text := range s.QuestionOptions {
		v.Options[i] = Option{Index: i, Text: text, Visible: me.OptionVisible(i)}
	}

	v.Powerups = make([]PowerupStatus, len(PowerUps))
	for i, pu := range PowerUps {
		v.Powerups[i] = PowerupStatus{
			Powerup:   pu,
			Available: s.Phase == PhaseAwaitingAnswers && !me.HasUsed(pu),
		}
	}

	// The correct answer leaves the projection entirely unless the phase
	// authorizes disclosure, even if a snapshot carried it early.
	if s.Phase.Discloses() && s.CorrectAnswer != nil {
		v.CorrectDisclosed = true
		v.CorrectAnswer = *s.CorrectAnswer
	}

	v.Leaderboard = leaderboard(s, playerID)
	for i, st := range v.Leaderboard {
		if st.You {
			v.Rank = i + 1
		}
	}
	v.IsWinner = v.Rank == 1

	return v
}

// leaderboard orders players by score descending. The sort is stable over
// first-seen roster order, so equal scores rank in arrival order on every
// client given the same input.
func leaderboard(s *GameState, playerID string) []Standing {
	ids := s.Players.IDs()
	out := make([]Standing, 0, len(ids))
	for _, id := range ids {
		p, _ := s.Players.Get(id)
		out = append(out, Standing{
			PlayerID: id,
			Name:     p.Name,
			Score:    p.Score,
			You:      id == playerID,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
