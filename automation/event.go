// Package automation turns inbound webhook events into rule executions: it resolves the
// receiving account, matches rules, steps the conversation flows and sends the replies.
package automation

import (
	"strings"

	"instaflow/instagram"
	"instaflow/models"
)

// Kind is the category of an inbound event
type Kind string

const (
	KindMessage     Kind = "message"
	KindPostback    Kind = "postback"
	KindComment     Kind = "comment"
	KindLiveComment Kind = "live_comment"
)

// Event is one inbound occurrence, normalised from a webhook delivery
type Event struct {
	// ID is the platform message or comment id, used for deduplication
	ID        string
	Kind      Kind
	SenderID  string
	Username  string
	RoutingID string
	Text      string
	MediaID   string
	CommentID string
	// Payload carries a postback or quick reply payload
	Payload string
	IsEcho  bool
}

// Triggers lists the rule trigger types this event can fire
func (e Event) Triggers() []models.TriggerType {
	switch e.Kind {
	case KindMessage:
		return []models.TriggerType{models.TriggerNewMessage, models.TriggerKeyword}
	case KindComment:
		return []models.TriggerType{models.TriggerPostComment, models.TriggerKeyword}
	case KindLiveComment:
		return []models.TriggerType{models.TriggerLiveComment, models.TriggerKeyword}
	}
	return nil
}

// IsComment reports whether the event came from a post or live comment
func (e Event) IsComment() bool {
	return e.Kind == KindComment || e.Kind == KindLiveComment
}

// Empty reports whether there is nothing to act on, like a sticker or reaction
func (e Event) Empty() bool {
	return strings.TrimSpace(e.Text) == "" && e.Payload == ""
}

// EventsFromWebhook flattens a delivery into events. Unsupported entries such as
// reactions, edits and read receipts are skipped.
func EventsFromWebhook(p *instagram.WebhookPayload) []Event {
	if p == nil {
		return nil
	}
	var events []Event
	for _, entry := range p.Entry {
		for _, m := range entry.Messaging {
			routing := m.Recipient.ID
			if routing == "" {
				routing = entry.ID
			}
			switch {
			case m.Message != nil:
				ev := Event{
					ID:        m.Message.MID,
					Kind:      KindMessage,
					SenderID:  m.Sender.ID,
					Username:  m.Sender.Username,
					RoutingID: routing,
					Text:      m.Message.Text,
					IsEcho:    m.IsEcho || m.Message.IsEcho,
				}
				if m.Message.QuickReply != nil {
					ev.Payload = m.Message.QuickReply.Payload
				}
				events = append(events, ev)
			case m.Postback != nil:
				events = append(events, Event{
					ID:        m.Postback.MID,
					Kind:      KindPostback,
					SenderID:  m.Sender.ID,
					RoutingID: routing,
					Text:      m.Postback.Title,
					Payload:   m.Postback.Payload,
				})
			}
		}

		for _, ch := range entry.Changes {
			var kind Kind
			switch ch.Field {
			case "comments":
				kind = KindComment
			case "live_comments":
				kind = KindLiveComment
			default:
				continue
			}
			events = append(events, Event{
				ID:        ch.Value.ID,
				Kind:      kind,
				SenderID:  ch.Value.From.ID,
				Username:  ch.Value.From.Username,
				RoutingID: entry.ID,
				Text:      ch.Value.Text,
				MediaID:   ch.Value.Media.ID,
				CommentID: ch.Value.ID,
			})
		}
	}
	return events
}
