package control

import "strings"

type Command int

const (
	CommandUnknown Command = iota
	CommandStart
	CommandStop
)

func (c Command) String() string {
	switch c {
	case CommandStart:
		return "/start"
	case CommandStop:
		return "/stop"
	default:
		return "unknown"
	}
}

// ParseCommand matches the first word of text case-insensitively.
// A "@botname" suffix, as sent in group chats, is ignored.
func ParseCommand(text string) Command {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return CommandUnknown
	}
	word := fields[0]
	if i := strings.IndexByte(word, '@'); i > 0 {
		word = word[:i]
	}

	switch word {
	case "/start":
		return CommandStart
	case "/stop":
		return CommandStop
	default:
		return CommandUnknown
	}
}

// Replies sent back to the chat that issued a command.
const (
	ReplyStarted        = "✅ Bot started!\nNew buy alerts will be posted here.\nSend /stop to stop receiving alerts."
	ReplyAlreadyRunning = "The bot is already running!\nSend /stop to stop receiving alerts."
	ReplyStopped        = "❌ Buy alerts stopped!\nSend /start to turn them back on."
	ReplyNotRunning     = "The bot is not running here yet!\nSend /start to turn on alerts."
)
