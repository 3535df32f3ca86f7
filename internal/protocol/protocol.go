// Package protocol defines the named events and payload shapes exchanged
// with the game authority. Both the client and the practice server speak
// exactly this contract; nothing outside it crosses the wire.
package protocol

// Events emitted by the client.
const (
	EventGetPlayer      = "get_player"
	EventNewPlayer      = "new_player"
	EventJoinLobby      = "join_lobby"
	EventJoinGame       = "join_game"
	EventSetBotLevel    = "set_bot_level"
	EventSelectCategory = "select_category"
	EventSubmitAnswer   = "submit_answer"
	EventUsePowerup     = "use_powerup"
	EventClientMessage  = "client_message"
)

// Events emitted by the authority.
const (
	EventPlayerInfo       = "player_info"
	EventPlayerRegistered = "player_registered"
	EventLobbyUpdate      = "lobby_update"
	EventNewGame          = "new_game"
	EventGameUpdate       = "game_update"
	EventServerMessage    = "server_message"
)

type NewPlayer struct {
	Name string `json:"name"`
}

type JoinGame struct {
	GameID string `json:"game_id"`
}

type SetBotLevel struct {
	Level string `json:"level"`
}

type SelectCategory struct {
	Category string `json:"category"`
}

type SubmitAnswer struct {
	Answer int `json:"answer"`
}

type UsePowerup struct {
	Powerup string `json:"powerup"`
}

type PlayerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type LobbyUpdate struct {
	Players         []string `json:"players"`
	TimeRemaining   int      `json:"time_remaining"`
	ShouldStartGame bool     `json:"should_start_game"`
}

type NewGame struct {
	ID string `json:"id"`
}

// ChatMessage carries both directions of the chat channel. Username is only
// filled in by the authority on the way back out.
type ChatMessage struct {
	ID        string `json:"id"`
	SenderID  string `json:"sender_id"`
	Username  string `json:"username,omitempty"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}
