package events

// Websocket event names, client to server.
const (
	JoinRepo      = "joinRepo"
	Typing        = "typing"
	StopTyping    = "stopTyping"
	SendMessage   = "sendMessage"
	ReadMessage   = "read_message"
	MessageAction = "messageAction"
)

// Websocket event names, server to client.
const (
	PresenceState     = "presence_state"
	PresenceDelta     = "presence_delta"
	ReceiveMessage    = "receiveMessage"
	MessageUpdated    = "messageUpdated"
	MessageDeleted    = "messageDeleted"
	UserTyping        = "userTyping"
	UserStoppedTyping = "userStoppedTyping"
	ActionFailed      = "action_failed"
	RateLimited       = "rate_limited"
)
