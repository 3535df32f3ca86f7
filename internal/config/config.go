package config

import (
	"os"
	"strconv"
)

type Client struct {
	ServerURL  string
	PlayerName string
	StatusAddr string
	LogLevel   string
}

func ClientFromEnv() Client {
	c := Client{}
	c.ServerURL = getenv("SERVER_URL", "ws://localhost:8080/ws")
	c.PlayerName = getenv("PLAYER_NAME", "")
	c.StatusAddr = os.Getenv("STATUS_ADDR")
	c.LogLevel = getenv("LOG_LEVEL", "info")
	return c
}

type Server struct {
	Port          string
	LobbyTime     int
	MaxPlayers    int
	AnswerTime    int
	RoundCount    int
	DefaultModel  string
	OpenAIKey     string
	OpenAIBaseURL string
}

func ServerFromEnv() Server {
	c := Server{}
	c.Port = getenv("PORT", "8080")
	c.LobbyTime = getint("LOBBY_TIME", 5)
	c.MaxPlayers = getint("MAX_PLAYERS", 4)
	c.AnswerTime = getint("ANSWER_TIME", 20)
	c.RoundCount = getint("ROUND_COUNT", 5)
	c.DefaultModel = getenv("DEFAULT_MODEL", "gpt-3.5-turbo")
	c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	return c
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
