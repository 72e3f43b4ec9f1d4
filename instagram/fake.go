package instagram

import (
	"context"
	"sync"

	"instaflow/models"
)

// SentMessage is one call captured by FakeMessenger
type SentMessage struct {
	AccountID uint
	CommentID string
	Message   OutboundMessage
}

// FakeMessenger records sends in memory. Err, when set, fails every call.
type FakeMessenger struct {
	mu      sync.Mutex
	Err     error
	Sent    []SentMessage
	Replies []SentMessage
}

func (f *FakeMessenger) SendMessage(_ context.Context, account *models.InstagramAccount, msg OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Sent = append(f.Sent, SentMessage{AccountID: account.ID, Message: msg})
	return nil
}

func (f *FakeMessenger) SendPrivateReply(_ context.Context, account *models.InstagramAccount, commentID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Replies = append(f.Replies, SentMessage{AccountID: account.ID, CommentID: commentID, Message: OutboundMessage{Text: text}})
	return nil
}

// Messages returns a copy of the DMs sent so far
func (f *FakeMessenger) Messages() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.Sent...)
}

// PrivateReplies returns a copy of the comment replies sent so far
func (f *FakeMessenger) PrivateReplies() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.Replies...)
}

// SetErr changes the failure injected into later calls
func (f *FakeMessenger) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}
