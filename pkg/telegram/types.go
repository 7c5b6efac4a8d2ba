package telegram

// ParseModeHTML is the parse mode used for all outgoing text.
const ParseModeHTML = "HTML"

// Update is one inbound event returned by getUpdates.
type Update struct {
	UpdateID int64
	Message  *Message
}

type Message struct {
	MessageID int64
	From      *User
	Chat      Chat
	Date      int64
	Text      string
}

type User struct {
	ID       int64
	Username string
}

type Chat struct {
	ID    int64
	Type  string // "private", "group", "supergroup", "channel"
	Title string
}

// Video describes a local video file sent with sendVideo.
type Video struct {
	Path     string
	Duration int // seconds
}
