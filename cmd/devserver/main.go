package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"

	"github.com/quizbattle/client/internal/ai"
	"github.com/quizbattle/client/internal/ai/openai"
	"github.com/quizbattle/client/internal/config"
	"github.com/quizbattle/client/internal/devserver"
)

const version = "v0.1.0-dev"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`QuizBattle practice server

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8080 or PORT env var)

Environment Variables:
  PORT                Port to listen on (default: 8080)
  LOBBY_TIME          Lobby countdown in seconds (default: 5)
  MAX_PLAYERS         Players needed for an instant start (default: 4)
  ANSWER_TIME         Answer window in seconds (default: 20)
  ROUND_COUNT         Questions per game (default: 5)
  DEFAULT_MODEL       Model used to top up the question bank (default: gpt-3.5-turbo)
  OPENAI_API_KEY      OpenAI API key (optional; embedded bank works without it)
  OPENAI_BASE_URL     Custom OpenAI API base URL (optional)

Examples:
  %s                  Start with default settings
  %s --port 3000      Start on port 3000
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("quizbattle devserver %s\n", version)
		return
	}

	// A missing .env is fine; env vars still apply.
	_ = godotenv.Load()

	cfg := config.ServerFromEnv()
	if *portFlag != "" {
		cfg.Port = *portFlag
	}

	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zerologlog.Logger = zerologlog.Output(cw)

	// Gin setup with custom logger (skip /ws noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/ws") {
			return
		}
		status := c.Writer.Status()
		dur := time.Since(start)
		zerologlog.Info().Str("path", path).Int("status", status).Dur("dur", dur).Msg("http")
	})

	bank, err := devserver.LoadBank()
	if err != nil {
		log.Fatal(err)
	}

	var provider ai.Provider
	if cfg.OpenAIKey != "" {
		provider = openai.New(cfg.OpenAIKey, cfg.OpenAIBaseURL)
	}

	srv := devserver.New(cfg, clockwork.NewRealClock(), bank, provider)
	srv.Mount(r)

	if provider != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			srv.TopUpQuestions(ctx, 5)
		}()
	}

	log.Printf("listening on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}
