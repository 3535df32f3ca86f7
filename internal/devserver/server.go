// Package devserver is a practice authority for the trivia client: a local
// server that speaks the same wire contract so a full lobby-to-game-exit
// run works without the real backend.
package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/quizbattle/client/internal/ai"
	"github.com/quizbattle/client/internal/config"
	"github.com/quizbattle/client/internal/game"
	"github.com/quizbattle/client/internal/protocol"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type client struct {
	id     string
	ws     *websocket.Conn
	gameID string

	writeMu sync.Mutex
	name    string
}

func (c *client) emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	frame, _ := json.Marshal(envelope{Event: event, Data: data})
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Debug().Err(err).Str("conn", c.id).Msg("write failed")
	}
}

type Server struct {
	cfg      config.Server
	clock    clockwork.Clock
	bank     *Bank
	provider ai.Provider
	upgrader websocket.Upgrader

	mu         sync.Mutex
	conns      map[string]*client
	lobbyOrder []string
	lobbyTime  int
	lobbyOpen  bool
	games      map[string]*Session
}

func New(cfg config.Server, clock clockwork.Clock, bank *Bank, provider ai.Provider) *Server {
	return &Server{
		cfg:      cfg,
		clock:    clock,
		bank:     bank,
		provider: provider,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*client),
		games: make(map[string]*Session),
	}
}

// Mount attaches the websocket endpoint and a healthcheck.
func (s *Server) Mount(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})
	r.GET("/ws", func(c *gin.Context) {
		s.handleWS(c.Writer, c.Request)
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("upgrade failed")
		return
	}
	c := &client{id: uuid.NewString(), ws: ws, name: "anonymous"}
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	log.Info().Str("conn", c.id).Msg("connected")
	c.emit(protocol.EventPlayerInfo, protocol.PlayerInfo{ID: c.id, Name: c.name})

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			break
		}
		var env envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			log.Warn().Err(err).Str("conn", c.id).Msg("dropping malformed frame")
			continue
		}
		s.dispatch(c, env)
	}

	s.disconnect(c)
}

func (s *Server) dispatch(c *client, env envelope) {
	switch env.Event {
	case protocol.EventGetPlayer:
		c.emit(protocol.EventPlayerInfo, protocol.PlayerInfo{ID: c.id, Name: c.name})

	case protocol.EventNewPlayer:
		var p protocol.NewPlayer
		if json.Unmarshal(env.Data, &p) == nil && p.Name != "" {
			c.name = p.Name
		}
		c.emit(protocol.EventPlayerRegistered, protocol.PlayerInfo{ID: c.id, Name: c.name})

	case protocol.EventJoinLobby:
		s.joinLobby(c)

	case protocol.EventJoinGame:
		var jg protocol.JoinGame
		if json.Unmarshal(env.Data, &jg) != nil {
			return
		}
		s.mu.Lock()
		if _, ok := s.games[jg.GameID]; ok {
			c.gameID = jg.GameID
		}
		s.mu.Unlock()

	case protocol.EventSubmitAnswer:
		var sa protocol.SubmitAnswer
		if json.Unmarshal(env.Data, &sa) != nil {
			return
		}
		if sess := s.sessionFor(c); sess != nil {
			sess.SubmitAnswer(c.id, sa.Answer)
		}

	case protocol.EventSelectCategory:
		var sc protocol.SelectCategory
		if json.Unmarshal(env.Data, &sc) != nil {
			return
		}
		if sess := s.sessionFor(c); sess != nil {
			sess.SelectCategory(c.id, sc.Category)
		}

	case protocol.EventSetBotLevel:
		var bl protocol.SetBotLevel
		if json.Unmarshal(env.Data, &bl) != nil {
			return
		}
		if sess := s.sessionFor(c); sess != nil {
			sess.SetBotLevel(c.id, game.BotLevel(bl.Level))
		}

	case protocol.EventUsePowerup:
		var up protocol.UsePowerup
		if json.Unmarshal(env.Data, &up) != nil {
			return
		}
		if sess := s.sessionFor(c); sess != nil {
			sess.UsePowerup(c.id, game.PowerUp(up.Powerup))
		}

	case protocol.EventClientMessage:
		var msg protocol.ChatMessage
		if json.Unmarshal(env.Data, &msg) != nil {
			return
		}
		msg.SenderID = c.id
		msg.Username = c.name
		s.broadcastTo(c.gameID, protocol.EventServerMessage, msg)

	default:
		log.Debug().Str("event", env.Event).Msg("ignoring unknown event")
	}
}

func (s *Server) sessionFor(c *client) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.games[c.gameID]
}

func (s *Server) joinLobby(c *client) {
	s.mu.Lock()
	for _, id := range s.lobbyOrder {
		if id == c.id {
			s.mu.Unlock()
			return
		}
	}
	s.lobbyOrder = append(s.lobbyOrder, c.id)
	startTimer := !s.lobbyOpen
	if startTimer {
		s.lobbyOpen = true
		s.lobbyTime = s.cfg.LobbyTime
	}
	s.mu.Unlock()

	log.Info().Str("conn", c.id).Str("name", c.name).Msg("joined lobby")
	if startTimer {
		go s.lobbyLoop()
	}
}

// lobbyLoop ticks the matchmaking countdown once a second, announcing the
// roster each tick and starting a game when full or out of time.
func (s *Server) lobbyLoop() {
	for {
		s.mu.Lock()
		if !s.lobbyOpen {
			s.mu.Unlock()
			return
		}
		names := s.lobbyNamesLocked()
		start := len(s.lobbyOrder) >= s.cfg.MaxPlayers ||
			(s.lobbyTime <= 0 && len(s.lobbyOrder) > 0)
		upd := protocol.LobbyUpdate{
			Players:         names,
			TimeRemaining:   s.lobbyTime,
			ShouldStartGame: start,
		}
		members := s.lobbyMembersLocked()
		s.mu.Unlock()

		for _, m := range members {
			m.emit(protocol.EventLobbyUpdate, upd)
		}
		if start {
			s.startGame()
			return
		}

		s.clock.Sleep(time.Second)
		s.mu.Lock()
		s.lobbyTime--
		if len(s.lobbyOrder) == 0 {
			s.lobbyOpen = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

func (s *Server) lobbyNamesLocked() []string {
	names := make([]string, 0, len(s.lobbyOrder))
	for _, id := range s.lobbyOrder {
		if c, ok := s.conns[id]; ok {
			names = append(names, c.name)
		}
	}
	return names
}

func (s *Server) lobbyMembersLocked() []*client {
	out := make([]*client, 0, len(s.lobbyOrder))
	for _, id := range s.lobbyOrder {
		if c, ok := s.conns[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) startGame() {
	s.mu.Lock()
	humans := make(map[string]string, len(s.lobbyOrder))
	members := s.lobbyMembersLocked()
	for _, c := range members {
		humans[c.id] = c.name
	}
	s.lobbyOrder = nil
	s.lobbyOpen = false
	s.mu.Unlock()

	if len(humans) == 0 {
		return
	}

	gameID := uuid.NewString()
	// A lone player gets a bot opponent and picks its level.
	withBot := len(humans) == 1
	sess := NewSession(gameID, humans, withBot, s.cfg.AnswerTime, s.cfg.RoundCount,
		s.clock, s.bank,
		func(event string, payload any) { s.broadcastTo(gameID, event, payload) },
		func(playerID, event string, payload any) { s.emitTo(playerID, event, payload) },
	)

	s.mu.Lock()
	s.games[gameID] = sess
	s.mu.Unlock()

	for _, c := range members {
		c.emit(protocol.EventNewGame, protocol.NewGame{ID: gameID})
	}

	go func() {
		sess.Run()
		s.mu.Lock()
		delete(s.games, gameID)
		s.mu.Unlock()
	}()
}

func (s *Server) broadcastTo(gameID string, event string, payload any) {
	s.mu.Lock()
	var targets []*client
	for _, c := range s.conns {
		if c.gameID == gameID {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()
	for _, c := range targets {
		c.emit(event, payload)
	}
}

func (s *Server) emitTo(playerID string, event string, payload any) {
	s.mu.Lock()
	c := s.conns[playerID]
	s.mu.Unlock()
	if c != nil {
		c.emit(event, payload)
	}
}

func (s *Server) disconnect(c *client) {
	s.mu.Lock()
	delete(s.conns, c.id)
	for i, id := range s.lobbyOrder {
		if id == c.id {
			s.lobbyOrder = append(s.lobbyOrder[:i], s.lobbyOrder[i+1:]...)
			break
		}
	}
	if len(s.lobbyOrder) == 0 {
		s.lobbyOpen = false
	}
	sess := s.games[c.gameID]
	s.mu.Unlock()

	if sess != nil {
		sess.RemovePlayer(c.id)
	}
	_ = c.ws.Close()
	log.Info().Str("conn", c.id).Msg("disconnected")
}

// TopUpQuestions refreshes the bank from the configured model for every
// category. Called once at startup when a provider is configured.
func (s *Server) TopUpQuestions(ctx context.Context, perCategory int) {
	if s.provider == nil {
		return
	}
	for _, cat := range s.bank.Categories() {
		s.bank.TopUp(ctx, s.provider, s.cfg.DefaultModel, cat, perCategory)
	}
}
