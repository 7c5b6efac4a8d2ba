package telegram

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrForbidden means the bot was blocked, kicked, or lacks rights in the chat.
	ErrForbidden = errors.New("telegram: forbidden")
	// ErrChatNotFound means the chat no longer exists or was never visible to the bot.
	ErrChatNotFound = errors.New("telegram: chat not found")
	// ErrChatMigrated means a group was upgraded to a supergroup with a new id.
	ErrChatMigrated = errors.New("telegram: chat migrated")
)

// APIError is a Bot API reply with ok=false.
type APIError struct {
	Method          string
	Code            int
	Description     string
	RetryAfter      int
	MigrateToChatID int64
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Unwrap maps the reply onto a sentinel so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch {
	case e.MigrateToChatID != 0:
		return ErrChatMigrated
	case e.Code == http.StatusForbidden:
		return ErrForbidden
	case e.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Description), "chat not found"):
		return ErrChatNotFound
	default:
		return nil
	}
}

// IsPermanent reports whether err means the destination will never accept
// messages again without a new subscription.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrForbidden) || errors.Is(err, ErrChatNotFound)
}

// MigratedTo returns the new chat id when err reports a group migration.
func MigratedTo(err error) (int64, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.MigrateToChatID != 0 {
		return apiErr.MigrateToChatID, true
	}
	return 0, false
}
