package notify

import (
	"context"
	"sync"
)

// Fake records outbound traffic for tests.
type Fake struct {
	mu      sync.Mutex
	nextID  int
	Sent    []FakeSent
	Edits   []FakeEdit
	Revoked []FakeRevoke
	Docs    []FakeDocument

	// SendErr, when set, fails every Send with this error.
	SendErr error
}

// FakeSent is one delivered message with the reference the fake assigned.
type FakeSent struct {
	Message
	ID int
}

type FakeEdit struct {
	ChatID    int64
	MessageID int
	Text      string
	Keyboard  [][]Button
}

type FakeRevoke struct {
	ChatID    int64
	MessageID int
}

type FakeDocument struct {
	ChatID  int64
	FileID  string
	Caption string
}

func (f *Fake) Send(ctx context.Context, msg Message) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return 0, f.SendErr
	}
	f.nextID++
	f.Sent = append(f.Sent, FakeSent{Message: msg, ID: f.nextID})
	return f.nextID, nil
}

func (f *Fake) Edit(ctx context.Context, chatID int64, messageID int, text string, kb [][]Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Edits = append(f.Edits, FakeEdit{ChatID: chatID, MessageID: messageID, Text: text, Keyboard: kb})
	return nil
}

func (f *Fake) RevokeControls(ctx context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Revoked = append(f.Revoked, FakeRevoke{ChatID: chatID, MessageID: messageID})
	return nil
}

func (f *Fake) SendDocument(ctx context.Context, chatID int64, fileID, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Docs = append(f.Docs, FakeDocument{ChatID: chatID, FileID: fileID, Caption: caption})
	return nil
}

// LastTo returns the most recent message sent to chatID, if any.
func (f *Fake) LastTo(chatID int64) (Message, bool) {
	msg, _, ok := f.LastIDTo(chatID)
	return msg, ok
}

// LastIDTo additionally reports the message reference.
func (f *Fake) LastIDTo(chatID int64) (Message, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Sent) - 1; i >= 0; i-- {
		if f.Sent[i].ChatID == chatID {
			return f.Sent[i].Message, f.Sent[i].ID, true
		}
	}
	return Message{}, 0, false
}
