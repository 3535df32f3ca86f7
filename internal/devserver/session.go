package devserver

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/quizbattle/client/internal/game"
	"github.com/quizbattle/client/internal/protocol"
)

type seat struct {
	player game.Player
	bot    bool
}

// Session drives one game to completion: it owns the authoritative state,
// ticks the countdown, applies player actions and broadcasts a full
// snapshot on every change. Clients never see anything but snapshots.
type Session struct {
	id         string
	clock      clockwork.Clock
	answerTime int
	roundCount int
	withBot    bool
	bank       *Bank

	broadcast func(event string, payload any)
	whisper   func(playerID, event string, payload any)

	mu            sync.Mutex
	phase         game.Phase
	timeRemaining int
	category      string
	catVotes      map[string]string
	botLevel      game.BotLevel
	botLevelSet   bool
	order         []string
	seats         map[string]*seat
	questions     []Question
	current       *Question

	done chan struct{}
}

func NewSession(id string, humans map[string]string, withBot bool, answerTime, roundCount int,
	clock clockwork.Clock, bank *Bank,
	broadcast func(event string, payload any),
	whisper func(playerID, event string, payload any)) *Session {

	s := &Session{
		id:         id,
		clock:      clock,
		answerTime: answerTime,
		roundCount: roundCount,
		withBot:    withBot,
		bank:       bank,
		broadcast:  broadcast,
		whisper:    whisper,
		phase:      game.PhaseGameStarted,
		catVotes:   make(map[string]string),
		botLevel:   game.BotLevelMedium,
		seats:      make(map[string]*seat),
		done:       make(chan struct{}),
	}
	for id, name := range humans {
		s.order = append(s.order, id)
		s.seats[id] = &seat{player: game.Player{ID: id, Name: name, Answer: game.NoAnswer}}
	}
	if withBot {
		botID := "bot-" + uuid.NewString()
		s.order = append(s.order, botID)
		s.seats[botID] = &seat{player: game.Player{ID: botID, Name: "QuizBot", Answer: game.NoAnswer}, bot: true}
	}
	return s
}

func (s *Session) Done() <-chan struct{} { return s.done }

func phaseDuration(p game.Phase, answerTime int) int {
	switch p {
	case game.PhaseGameStarted, game.PhaseCategoryResults, game.PhaseRoundEnded:
		return 3
	case game.PhaseBotLevelSelection, game.PhaseCategorySelection:
		return 10
	case game.PhaseAwaitingAnswers:
		return answerTime
	case game.PhaseGameEnded:
		return 5
	}
	return 0
}

// Run walks the phase schedule. It blocks until the game reaches game_exit.
func (s *Session) Run() {
	log.Info().Str("game", s.id).Int("players", len(s.order)).Msg("game starting")

	s.runPhase(game.PhaseGameStarted, s.resetScores, nil, nil)
	if s.withBot {
		s.runPhase(game.PhaseBotLevelSelection, nil, nil, func() bool { return s.botLevelSet })
	}
	s.runPhase(game.PhaseCategorySelection, nil, s.tallyCategory, s.allVoted)
	s.runPhase(game.PhaseCategoryResults, s.loadQuestions, nil, nil)

	for i := range s.questions {
		s.mu.Lock()
		s.current = &s.questions[i]
		s.mu.Unlock()
		s.runPhase(game.PhaseAwaitingAnswers, s.resetAnswers, s.scoreRound, s.allAnswered)
		s.runPhase(game.PhaseRoundEnded, nil, nil, nil)
	}

	s.runPhase(game.PhaseGameEnded, nil, nil, nil)

	s.mu.Lock()
	s.phase = game.PhaseGameExit
	s.timeRemaining = 0
	s.mu.Unlock()
	s.update()

	log.Info().Str("game", s.id).Msg("game over")
	close(s.done)
}

// runPhase mirrors the tick loop the real authority runs: setup, a snapshot
// per second, optional early stop, teardown. All hooks run under the lock.
func (s *Session) runPhase(p game.Phase, setup, teardown func(), shouldStop func() bool) {
	s.mu.Lock()
	s.phase = p
	s.timeRemaining = phaseDuration(p, s.answerTime)
	if setup != nil {
		setup()
	}
	s.mu.Unlock()
	s.update()

	for {
		s.mu.Lock()
		stop := s.timeRemaining <= 0 || (shouldStop != nil && shouldStop())
		s.mu.Unlock()
		if stop {
			break
		}
		s.clock.Sleep(time.Second)
		s.mu.Lock()
		s.timeRemaining--
		s.botTick()
		s.mu.Unlock()
		s.update()
	}

	s.mu.Lock()
	if teardown != nil {
		teardown()
	}
	s.mu.Unlock()
}

func (s *Session) update() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.broadcast(protocol.EventGameUpdate, snap)
}

func (s *Session) snapshotLocked() game.GameState {
	var roster game.Roster
	for _, id := range s.order {
		roster.Add(s.seats[id].player)
	}
	st := game.GameState{
		ID:            s.id,
		Phase:         s.phase,
		Category:      s.category,
		TimeRemaining: s.timeRemaining,
		Players:       roster,
	}
	switch s.phase {
	case game.PhaseCategorySelection:
		st.QuestionText = "Pick a category"
		st.QuestionOptions = s.bank.Categories()
	case game.PhaseAwaitingAnswers, game.PhaseRoundEnded, game.PhaseGameEnded:
		if s.current != nil {
			st.QuestionText = s.current.Text
			st.QuestionOptions = s.current.Options
		}
	}
	if s.phase.Discloses() && s.current != nil {
		idx := s.current.CorrectIndex
		st.CorrectAnswer = &idx
	}
	return st
}

//
// Player actions, called from the transport layer.
//

func (s *Session) SubmitAnswer(playerID string, answer int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.seats[playerID]
	if !ok || s.phase != game.PhaseAwaitingAnswers || st.player.HasAnswered() {
		return
	}
	if s.current == nil || answer < 0 || answer >= len(s.current.Options) {
		return
	}
	st.player.Answer = answer
}

func (s *Session) SelectCategory(playerID, category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != game.PhaseCategorySelection {
		return
	}
	if _, ok := s.seats[playerID]; !ok {
		return
	}
	if _, voted := s.catVotes[playerID]; voted {
		return
	}
	s.catVotes[playerID] = category
}

func (s *Session) SetBotLevel(playerID string, level game.BotLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != game.PhaseBotLevelSelection || s.botLevelSet {
		return
	}
	if _, ok := s.seats[playerID]; !ok {
		return
	}
	switch level {
	case game.BotLevelEasy, game.BotLevelMedium, game.BotLevelHard:
		s.botLevel = level
		s.botLevelSet = true
	}
}

func (s *Session) UsePowerup(playerID string, powerup game.PowerUp) {
	s.mu.Lock()
	st, ok := s.seats[playerID]
	if !ok || s.phase != game.PhaseAwaitingAnswers || st.player.HasUsed(powerup) || s.current == nil {
		s.mu.Unlock()
		return
	}
	st.player.UsedPowerups = append(st.player.UsedPowerups, powerup)

	var hint string
	switch powerup {
	case game.PowerUpFiftyFifty:
		st.player.VisibleOptions = s.fiftyFiftyLocked()
	case game.PowerUpDoublePoints:
		st.player.DoublePointsActive = true
	case game.PowerUpCallFriend:
		hint = s.friendHintLocked()
	}
	s.mu.Unlock()

	if hint != "" {
		s.whisper(playerID, protocol.EventServerMessage, protocol.ChatMessage{
			ID:        uuid.NewString(),
			SenderID:  "system",
			Username:  "Friend",
			Text:      hint,
			Timestamp: s.clock.Now().UTC().Format(time.RFC3339),
		})
	}
	s.update()
}

func (s *Session) RemovePlayer(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seats[playerID]; !ok {
		return
	}
	delete(s.seats, playerID)
	for i, id := range s.order {
		if id == playerID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Session) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.seats {
		if !st.bot {
			return false
		}
	}
	return true
}

//
// Phase hooks; callers hold the lock.
//

func (s *Session) resetScores() {
	for _, st := range s.seats {
		st.player.Score = 0
	}
}

func (s *Session) resetAnswers() {
	for _, st := range s.seats {
		st.player.Answer = game.NoAnswer
		st.player.VisibleOptions = nil
		st.player.DoublePointsActive = false
	}
}

func (s *Session) scoreRound() {
	if s.current == nil {
		return
	}
	for _, st := range s.seats {
		if st.player.Answer != s.current.CorrectIndex {
			continue
		}
		points := 1
		if st.player.DoublePointsActive {
			points = 2
		}
		st.player.Score += points
	}
}

func (s *Session) allAnswered() bool {
	for _, st := range s.seats {
		if !st.player.HasAnswered() {
			return false
		}
	}
	return true
}

func (s *Session) allVoted() bool {
	for id, st := range s.seats {
		if st.bot {
			continue
		}
		if _, ok := s.catVotes[id]; !ok {
			return false
		}
	}
	return len(s.catVotes) > 0
}

func (s *Session) tallyCategory() {
	counts := make(map[string]int)
	var firstSeen []string
	for _, id := range s.order {
		cat, ok := s.catVotes[id]
		if !ok {
			continue
		}
		if counts[cat] == 0 {
			firstSeen = append(firstSeen, cat)
		}
		counts[cat]++
	}
	best := ""
	for _, cat := range firstSeen {
		if best == "" || counts[cat] > counts[best] {
			best = cat
		}
	}
	if best == "" {
		cats := s.bank.Categories()
		best = cats[rand.Intn(len(cats))]
	}
	s.category = best
}

func (s *Session) loadQuestions() {
	s.questions = s.bank.Pick(s.category, s.roundCount)
}

// botTick lets bots act mid-phase: they answer once half the time is gone,
// with an accuracy set by the chosen difficulty.
func (s *Session) botTick() {
	if s.phase != game.PhaseAwaitingAnswers || s.current == nil {
		return
	}
	if s.timeRemaining > s.answerTime/2 {
		return
	}
	accuracy := map[game.BotLevel]float64{
		game.BotLevelEasy:   0.25,
		game.BotLevelMedium: 0.5,
		game.BotLevelHard:   0.85,
	}[s.botLevel]
	for _, st := range s.seats {
		if !st.bot || st.player.HasAnswered() {
			continue
		}
		if rand.Float64() < accuracy {
			st.player.Answer = s.current.CorrectIndex
		} else {
			st.player.Answer = (s.current.CorrectIndex + 1 + rand.Intn(len(s.current.Options)-1)) % len(s.current.Options)
		}
	}
}

// fiftyFiftyLocked hides two wrong options, leaving the correct one and a
// single decoy visible.
func (s *Session) fiftyFiftyLocked() []bool {
	n := len(s.current.Options)
	visible := make([]bool, n)
	for i := range visible {
		visible[i] = true
	}
	var wrong []int
	for i := 0; i < n; i++ {
		if i != s.current.CorrectIndex {
			wrong = append(wrong, i)
		}
	}
	rand.Shuffle(len(wrong), func(i, j int) { wrong[i], wrong[j] = wrong[j], wrong[i] })
	for i := 0; i < len(wrong)-1 && i < 2; i++ {
		visible[wrong[i]] = false
	}
	return visible
}

// friendHintLocked is right most of the time, like a good friend.
func (s *Session) friendHintLocked() string {
	guess := s.current.CorrectIndex
	if rand.Float64() > 0.7 {
		guess = rand.Intn(len(s.current.Options))
	}
	return fmt.Sprintf("I'm fairly sure it's %q.", s.current.Options[guess])
}
