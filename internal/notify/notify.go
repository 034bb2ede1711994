// Package notify is the outbound side of the chat transport. Handlers talk
// to the Notifier interface so tests can observe traffic without a live bot.
package notify

import "context"

// Button is one inline control under a message.
type Button struct {
	Text string
	Data string
}

// Message is a single outbound chat message. VideoFileID, when set, sends
// the text as a video caption instead of plain text.
type Message struct {
	ChatID      int64
	Text        string
	Keyboard    [][]Button
	VideoFileID string
}

type Notifier interface {
	// Send delivers the message and returns the transport's message
	// reference, used later to detect stale task controls.
	Send(ctx context.Context, msg Message) (int, error)

	// Edit replaces the text and controls of a previously sent message.
	Edit(ctx context.Context, chatID int64, messageID int, text string, kb [][]Button) error

	// RevokeControls strips the inline controls of a message, leaving its
	// text in place.
	RevokeControls(ctx context.Context, chatID int64, messageID int) error

	// SendDocument delivers a stored file by its transport file id.
	SendDocument(ctx context.Context, chatID int64, fileID, caption string) error
}

// Broadcast sends the same message to every recipient, continuing past
// per-recipient failures. The returned map holds an entry per failed chat.
func Broadcast(ctx context.Context, n Notifier, recipients []int64, msg Message) map[int64]error {
	failed := map[int64]error{}
	for _, chatID := range recipients {
		m := msg
		m.ChatID = chatID
		if _, err := n.Send(ctx, m); err != nil {
			failed[chatID] = err
		}
	}
	return failed
}
