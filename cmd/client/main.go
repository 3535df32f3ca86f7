package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"

	"github.com/quizbattle/client/internal/channel/wschannel"
	"github.com/quizbattle/client/internal/chat"
	"github.com/quizbattle/client/internal/config"
	"github.com/quizbattle/client/internal/game"
	"github.com/quizbattle/client/internal/lobby"
	"github.com/quizbattle/client/internal/protocol"
	"github.com/quizbattle/client/internal/render"
	"github.com/quizbattle/client/internal/session"
)

const version = "v0.1.0-dev"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		nameFlag    = flag.String("name", "", "Player name (overrides PLAYER_NAME env var)")
		serverFlag  = flag.String("server", "", "Server websocket URL (overrides SERVER_URL env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`QuizBattle terminal client

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --name NAME     Player name
  --server URL    Server websocket URL (default: ws://localhost:8080/ws)

Environment Variables:
  SERVER_URL      Server websocket URL (default: ws://localhost:8080/ws)
  PLAYER_NAME     Player name
  STATUS_ADDR     Optional address for a local status HTTP endpoint
  LOG_LEVEL       zerolog level (default: info)

In-game commands:
  1-4             Answer the question / vote for a category / pick bot level
  p <powerup>     Use a powerup: 5050, friend, or x2
  say <text>      Send a chat message
  q               Quit
`, os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("quizbattle client %s\n", version)
		return
	}

	// A missing .env is fine; env vars still apply.
	_ = godotenv.Load()

	cfg := config.ClientFromEnv()
	if *nameFlag != "" {
		cfg.PlayerName = *nameFlag
	}
	if *serverFlag != "" {
		cfg.ServerURL = *serverFlag
	}

	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	zerologlog.Logger = zerologlog.Output(cw)
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		zerologlog.Fatal().Err(err).Msg("client exited")
	}
}

func run(ctx context.Context, cfg config.Client) error {
	disconnected := make(chan error, 1)
	ch, err := wschannel.Dial(ctx, cfg.ServerURL, wschannel.Options{
		PingInterval: 30 * time.Second,
		OnDisconnect: func(err error) { disconnected <- err },
	})
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.ServerURL, err)
	}
	defer ch.Close()

	me, err := register(ctx, ch, cfg.PlayerName)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("Connected as %s", me.Name)

	term := render.NewTerminal()

	var handoff *lobby.Handoff
	store := session.NewStore(ctx, ch, me.ID, term, func() {
		// Terminal phase reached; queue back up for the next game.
		if err := handoff.Join(); err != nil {
			zerologlog.Error().Err(err).Msg("rejoin lobby failed")
		}
	})
	defer store.Leave()

	handoff = lobby.NewHandoff(ch,
		func(v lobby.View) { term.RenderLobby(v.Players, v.TimeRemaining) },
		func(sessionID string) { store.Begin(sessionID) },
	)
	defer handoff.Stop()

	chatLog := chat.NewLog(ch, me.ID, func(m chat.Message) {
		term.RenderChat(m.Username, m.Text)
	})
	defer chatLog.Stop()

	if cfg.StatusAddr != "" {
		go serveStatus(cfg.StatusAddr, store)
	}

	if err := handoff.Join(); err != nil {
		return fmt.Errorf("join lobby: %w", err)
	}
	pterm.Info.Println("Waiting for players. Type 'q' to quit.")

	lines := readLines(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-disconnected:
			if err != nil {
				return fmt.Errorf("connection lost: %w", err)
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleCommand(line, store, chatLog); quit {
				return nil
			}
		}
	}
}

// register waits for the connection identity, claims a name when one is
// configured, and returns the identity the authority settled on.
func register(ctx context.Context, ch *wschannel.Conn, name string) (protocol.PlayerInfo, error) {
	infos := make(chan protocol.PlayerInfo, 2)
	handler := func(data json.RawMessage) {
		var info protocol.PlayerInfo
		if json.Unmarshal(data, &info) == nil {
			infos <- info
		}
	}
	ch.On(protocol.EventPlayerInfo, handler)
	ch.On(protocol.EventPlayerRegistered, handler)
	defer ch.Off(protocol.EventPlayerInfo)
	defer ch.Off(protocol.EventPlayerRegistered)

	if err := ch.Emit(protocol.EventGetPlayer, struct{}{}); err != nil {
		return protocol.PlayerInfo{}, fmt.Errorf("request identity: %w", err)
	}
	me, err := awaitInfo(ctx, infos)
	if err != nil {
		return protocol.PlayerInfo{}, err
	}
	if name == "" {
		return me, nil
	}
	if err := ch.Emit(protocol.EventNewPlayer, protocol.NewPlayer{Name: name}); err != nil {
		return protocol.PlayerInfo{}, fmt.Errorf("register name: %w", err)
	}
	return awaitInfo(ctx, infos)
}

func awaitInfo(ctx context.Context, infos <-chan protocol.PlayerInfo) (protocol.PlayerInfo, error) {
	select {
	case info := <-infos:
		return info, nil
	case <-time.After(10 * time.Second):
		return protocol.PlayerInfo{}, fmt.Errorf("no player identity from server")
	case <-ctx.Done():
		return protocol.PlayerInfo{}, ctx.Err()
	}
}

// handleCommand interprets one line of input. Bare numbers are
// phase-sensitive: they answer, vote, or pick a bot level depending on
// where the game currently stands.
func handleCommand(line string, store *session.Store, chatLog *chat.Log) (quit bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case line == "q" || line == "quit":
		return true

	case strings.HasPrefix(line, "say "):
		if err := chatLog.Send(strings.TrimPrefix(line, "say ")); err != nil {
			pterm.Warning.Printfln("Chat failed: %v", err)
		}
		return false

	case strings.HasPrefix(line, "p "):
		report(store.UsePowerup(parsePowerup(strings.TrimPrefix(line, "p "))))
		return false
	}

	n, err := strconv.Atoi(line)
	if err != nil || n < 1 {
		pterm.Warning.Printfln("Unrecognized command %q (try -h for help)", line)
		return false
	}

	v := store.View()
	switch v.Phase {
	case game.PhaseAwaitingAnswers:
		report(store.SubmitAnswer(n - 1))
	case game.PhaseCategorySelection:
		if n > len(v.Options) {
			pterm.Warning.Printfln("There are only %d categories", len(v.Options))
			return false
		}
		report(store.SelectCategory(v.Options[n-1].Text))
	case game.PhaseBotLevelSelection:
		levels := []game.BotLevel{game.BotLevelEasy, game.BotLevelMedium, game.BotLevelHard}
		if n > len(levels) {
			pterm.Warning.Println("Pick 1, 2, or 3")
			return false
		}
		report(store.SetBotLevel(levels[n-1]))
	default:
		pterm.Warning.Println("Nothing to pick right now")
	}
	return false
}

func parsePowerup(s string) game.PowerUp {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "5050", "50/50", "fifty":
		return game.PowerUpFiftyFifty
	case "friend", "call":
		return game.PowerUpCallFriend
	case "x2", "double":
		return game.PowerUpDoublePoints
	default:
		return game.PowerUp(s)
	}
}

func report(r game.Result) {
	switch {
	case r.Sent && r.HiddenOption:
		pterm.Warning.Println("Sent, but that option was eliminated by 50/50")
	case r.Sent:
		pterm.Success.Println("Sent")
	case r.Reason == game.NoopAlreadyAnswered:
		pterm.Info.Println("You already answered this round")
	case r.Reason == game.NoopAlreadySelected:
		pterm.Info.Println("You already made that choice")
	case r.Reason == game.NoopPowerupUsed:
		pterm.Info.Println("That powerup is spent")
	case r.Reason == game.NoopWrongPhase:
		pterm.Info.Println("Not available right now")
	default:
		pterm.Error.Println("Send failed, check the connection")
	}
}

func readLines(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case out <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// serveStatus exposes the current projection for scripting and debugging.
func serveStatus(addr string, store *session.Store) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})
	r.GET("/view", func(c *gin.Context) {
		c.JSON(http.StatusOK, store.View())
	})
	if err := r.Run(addr); err != nil {
		zerologlog.Error().Err(err).Msg("status endpoint stopped")
	}
}
