// Package render draws projections on the terminal. It is a pure consumer
// of PlayerView; nothing here reaches back into game state.
package render

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/quizbattle/client/internal/game"
)

var optionLabels = []string{"A", "B", "C", "D", "E", "F"}

type Terminal struct{}

func NewTerminal() *Terminal { return &Terminal{} }

// Render draws one projection. Called once per applied snapshot.
func (t *Terminal) Render(v game.PlayerView) {
	if !v.PhaseKnown {
		pterm.Warning.Printfln("Game is in an unrecognized phase (%s). Hang tight.", v.Phase)
		return
	}

	switch v.Phase {
	case game.PhaseGameStarted:
		pterm.DefaultSection.Println("Get ready!")

	case game.PhaseBotLevelSelection:
		pterm.DefaultSection.Println("Choose your opponent")
		pterm.Info.Println("Pick a bot level: 1) easy  2) medium  3) hard")

	case game.PhaseCategorySelection:
		pterm.DefaultSection.Println(v.QuestionText)
		for i, opt := range v.Options {
			pterm.Printfln("  %d) %s", i+1, opt.Text)
		}
		pterm.Printfln("%s left to vote", seconds(v.TimeRemaining))

	case game.PhaseCategoryResults:
		pterm.Info.Printfln("Playing: %s", v.Category)

	case game.PhaseAwaitingAnswers:
		t.renderQuestion(v)

	case game.PhaseRoundEnded:
		if v.CorrectDisclosed && v.CorrectAnswer >= 0 && v.CorrectAnswer < len(v.Options) {
			pterm.Success.Printfln("Correct answer: %s) %s",
				label(v.CorrectAnswer), v.Options[v.CorrectAnswer].Text)
		}
		t.renderLeaderboard(v)

	case game.PhaseGameEnded:
		pterm.DefaultSection.Println("Final standings")
		t.renderLeaderboard(v)
		if v.IsWinner {
			pterm.Success.Println("You won!")
		} else if v.Rank > 0 {
			pterm.Info.Printfln("You finished #%d", v.Rank)
		}

	case game.PhaseGameExit:
		pterm.Info.Println("Game over, heading back to the lobby.")
	}
}

func (t *Terminal) renderQuestion(v game.PlayerView) {
	pterm.DefaultSection.Println(v.QuestionText)
	for _, opt := range v.Options {
		line := fmt.Sprintf("  %s) %s", label(opt.Index), opt.Text)
		if !opt.Visible {
			line = pterm.Gray(fmt.Sprintf("  %s) %s", label(opt.Index), strings.Repeat("─", len(opt.Text))))
		}
		pterm.Println(line)
	}
	if v.HasAnswered {
		pterm.Info.Printfln("Answer locked in: %s", label(v.Answer))
	} else {
		pterm.Printfln("%s to answer", seconds(v.TimeRemaining))
	}
	var avail []string
	for _, pu := range v.Powerups {
		if pu.Available {
			avail = append(avail, string(pu.Powerup))
		}
	}
	if len(avail) > 0 {
		pterm.Printfln("Powerups: %s", strings.Join(avail, ", "))
	}
	if v.DoublePointsActive {
		pterm.Info.Println("Double points active this round!")
	}
}

func (t *Terminal) renderLeaderboard(v game.PlayerView) {
	rows := pterm.TableData{{"#", "Player", "Score"}}
	for i, st := range v.Leaderboard {
		name := st.Name
		if st.You {
			name += " (you)"
		}
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), name, fmt.Sprintf("%d", st.Score)})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

// RenderLobby draws the matchmaking roster.
func (t *Terminal) RenderLobby(players []string, timeRemaining int) {
	pterm.Info.Printfln("Lobby: %s (starting in %s)",
		strings.Join(players, ", "), seconds(timeRemaining))
}

// RenderChat draws one chat line.
func (t *Terminal) RenderChat(username, text string) {
	pterm.Printfln("%s %s", pterm.Cyan("["+username+"]"), text)
}

func label(i int) string {
	if i >= 0 && i < len(optionLabels) {
		return optionLabels[i]
	}
	return fmt.Sprintf("%d", i+1)
}

func seconds(n int) string {
	return fmt.Sprintf("%ds", n)
}
