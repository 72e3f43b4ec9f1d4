// Package flow runs the per-conversation state machines that sit in front of a rule's primary DM:
// the pre-send follow/email gate and the lead capture ask/save/send flow.
package flow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"instaflow/models"
	"instaflow/store"
	"instaflow/tracker"
	"instaflow/utils"
)

const (
	DefaultAskToFollowMessage = "Hey! Would you mind following me? I share great content! 🙌"
	DefaultAskForEmailMessage = "Quick question - what's your email? I'd love to send you something special! 📧"
	DefaultEmailRetryMessage  = "Hmm, that doesn't look like a valid email address. 🤔\n\nPlease type it again so I can send you the guide! 📧"
	DefaultFollowReminder     = "I see you confirmed following! 👋\n\nNow I just need your email address so I can send you the guide! 📧"
	DefaultFollowButtonText   = "I'm following ✅"

	// DefaultClaimTTL bounds how long an unsent outbound action blocks duplicates
	DefaultClaimTTL = 2 * time.Minute

	followPayloadPrefix = "FOLLOW_CONFIRMED:"
)

// Action is the outbound message a flow step asks the caller to send
type Action string

const (
	ActionNone        Action = "none"
	ActionAskFollow   Action = "ask_follow"
	ActionAskEmail    Action = "ask_email"
	ActionRetryEmail  Action = "retry_email"
	ActionSendPrimary Action = "send_primary"
)

// Conversation is one end user talking to one rule
type Conversation struct {
	Rule      *models.AutomationRule
	OwnerID   uint
	AccountID *uint
	SenderID  string
}

// Key is the flow state key; rule-first so a rule's flows can be reset by prefix
func (c Conversation) Key() string {
	return RulePrefix(c.Rule.ID) + c.SenderID
}

// RulePrefix is the key prefix shared by every conversation of a rule
func RulePrefix(ruleID uint) string {
	return strconv.FormatUint(uint64(ruleID), 10) + ":"
}

// Input is the inbound part of a flow step
type Input struct {
	Text          string
	FollowClicked bool
	// VIP skips the follow and email gates
	VIP bool
}

// PreSendState is the persisted progress of one conversation through the gate
type PreSendState struct {
	FollowRequested bool      `json:"follow_requested"`
	FollowConfirmed bool      `json:"follow_confirmed"`
	EmailRequested  bool      `json:"email_requested"`
	EmailReceived   bool      `json:"email_received"`
	Email           string    `json:"email,omitempty"`
	LeadSaved       bool      `json:"lead_saved"`
	PrimarySent     bool      `json:"primary_sent"`
	Pending         Action    `json:"pending,omitempty"`
	PendingAt       time.Time `json:"pending_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Step names the furthest stage reached
func (s PreSendState) Step() string {
	switch {
	case s.PrimarySent:
		return "primary_sent"
	case s.EmailReceived:
		return "email_received"
	case s.EmailRequested:
		return "email_requested"
	case s.FollowConfirmed:
		return "follow_confirmed"
	case s.FollowRequested:
		return "follow_requested"
	}
	return "initial"
}

func (s PreSendState) claimed(now time.Time, ttl time.Duration) bool {
	return s.Pending != "" && s.Pending != ActionNone && now.Sub(s.PendingAt) < ttl
}

// Decision is the result of a flow step
type Decision struct {
	Action  Action
	Text    string
	Buttons []models.Button

	// FollowConfirmed is set when this step confirmed the follow
	FollowConfirmed bool
	// Email is set when this step captured a valid address
	Email string
	// Lead is the lead row written by this step, if any
	Lead *models.CapturedLead
}

// Sends reports whether the caller has a message to deliver
func (d Decision) Sends() bool {
	return d.Action != ActionNone && d.Action != ""
}

// LeadSaver writes a lead at most once per sender and rule
type LeadSaver interface {
	SaveOnce(ctx context.Context, in tracker.NewLead) (*models.CapturedLead, bool, error)
}

// PreSend gates a rule's primary DM behind the optional follow and email requests
type PreSend struct {
	states   store.StateStore[PreSendState]
	leads    LeadSaver
	claimTTL time.Duration
	now      func() time.Time
}

func NewPreSend(states store.StateStore[PreSendState], leads LeadSaver) *PreSend {
	return &PreSend{
		states:   states,
		leads:    leads,
		claimTTL: DefaultClaimTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FollowPayload is the postback payload of a rule's follow button
func FollowPayload(ruleID uint) string {
	return followPayloadPrefix + strconv.FormatUint(uint64(ruleID), 10)
}

// ParseFollowPayload extracts the rule id from a follow button postback
func ParseFollowPayload(payload string) (uint, bool) {
	if !strings.HasPrefix(payload, followPayloadPrefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(payload, followPayloadPrefix), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// InProgress reports whether the conversation is waiting on a reply from the end user
func (p *PreSend) InProgress(ctx context.Context, conv Conversation) (bool, error) {
	st, ok, err := p.states.Get(ctx, conv.Key())
	if err != nil || !ok {
		return false, err
	}
	if st.PrimarySent {
		return false, nil
	}
	waitingFollow := st.FollowRequested && !st.FollowConfirmed
	waitingEmail := st.EmailRequested && !st.EmailReceived
	return waitingFollow || waitingEmail, nil
}

// State returns the stored state of a conversation
func (p *PreSend) State(ctx context.Context, conv Conversation) (PreSendState, bool, error) {
	return p.states.Get(ctx, conv.Key())
}

// Step advances the conversation by one inbound event and claims the next outbound action.
// A claimed action must be settled with Commit after a successful send or Release after a failed one.
func (p *PreSend) Step(ctx context.Context, conv Conversation, in Input) (Decision, error) {
	cfg := conv.Rule.Config
	askFollow := cfg.AskToFollow && !in.VIP
	askEmail := cfg.AskForEmail && !in.VIP
	now := p.now()

	var d Decision
	st, err := p.states.Update(ctx, conv.Key(), func(st PreSendState, _ bool) (PreSendState, error) {
		d = Decision{Action: ActionNone}
		if st.PrimarySent || st.claimed(now, p.claimTTL) {
			return st, store.ErrNoChange
		}

		if askFollow && st.FollowRequested && !st.FollowConfirmed {
			if !in.FollowClicked && !IsFollowConfirmation(in.Text) {
				return st, store.ErrNoChange
			}
			st.FollowConfirmed = true
			d.FollowConfirmed = true
		} else if askEmail && st.EmailRequested && !st.EmailReceived {
			email, err := utils.ExtractEmail(in.Text)
			if err != nil {
				d.Action = ActionRetryEmail
				d.Text = retryText(cfg, in, err)
				return st, store.ErrNoChange
			}
			st.EmailReceived = true
			st.Email = email
			d.Email = email
		}

		switch {
		case askFollow && !st.FollowConfirmed:
			d.Action = ActionAskFollow
			d.Text = utils.FirstNonEmpty(cfg.AskToFollowMessage, DefaultAskToFollowMessage)
			d.Buttons = []models.Button{{
				Type:    "postback",
				Title:   utils.FirstNonEmpty(cfg.FollowButtonText, DefaultFollowButtonText),
				Payload: FollowPayload(conv.Rule.ID),
			}}
		case askEmail && !st.EmailReceived:
			d.Action = ActionAskEmail
			d.Text = utils.FirstNonEmpty(cfg.AskForEmailMessage, DefaultAskForEmailMessage)
		default:
			d.Action = ActionSendPrimary
			d.Text = utils.PickMessage(cfg.MessageVariations, cfg.MessageTemplate)
		}
		st.Pending = d.Action
		st.PendingAt = now
		st.UpdatedAt = now
		return st, nil
	})
	if errors.Is(err, store.ErrNoChange) {
		return d, nil
	}
	if err != nil {
		return Decision{Action: ActionNone}, fmt.Errorf("pre-send step: %w", err)
	}

	if st.EmailReceived && !st.LeadSaved {
		lead, created, err := p.leads.SaveOnce(ctx, tracker.NewLead{
			OwnerID:   conv.OwnerID,
			AccountID: conv.AccountID,
			RuleID:    conv.Rule.ID,
			SenderID:  conv.SenderID,
			Email:     st.Email,
			Channel:   models.CapturedViaPreSend,
		})
		if err != nil {
			p.Release(ctx, conv)
			return Decision{Action: ActionNone}, err
		}
		if created {
			d.Lead = lead
		}
		if _, err := p.states.Update(ctx, conv.Key(), func(st PreSendState, _ bool) (PreSendState, error) {
			st.LeadSaved = true
			return st, nil
		}); err != nil {
			utils.LogError("PreSendLeadFlag", err, map[string]interface{}{"rule_id": conv.Rule.ID, "sender_id": conv.SenderID})
		}
	}
	return d, nil
}

func retryText(cfg models.RuleConfig, in Input, verr error) string {
	if in.FollowClicked || IsFollowConfirmation(in.Text) {
		return DefaultFollowReminder
	}
	if cfg.EmailRetryMessage != "" {
		return cfg.EmailRetryMessage
	}
	var ve *utils.ValidationError
	if errors.As(verr, &ve) && ve.Message != "" {
		return ve.Message + "\n\n" + utils.FirstNonEmpty(cfg.AskForEmailMessage, DefaultAskForEmailMessage)
	}
	return DefaultEmailRetryMessage
}

// Commit records that the claimed action was delivered
func (p *PreSend) Commit(ctx context.Context, conv Conversation, action Action) error {
	now := p.now()
	_, err := p.states.Update(ctx, conv.Key(), func(st PreSendState, _ bool) (PreSendState, error) {
		switch action {
		case ActionAskFollow:
			st.FollowRequested = true
		case ActionAskEmail:
			st.EmailRequested = true
		case ActionSendPrimary:
			st.PrimarySent = true
		}
		st.Pending = ""
		st.PendingAt = time.Time{}
		st.UpdatedAt = now
		return st, nil
	})
	return err
}

// Release drops a claim after a failed send so the next event can retry
func (p *PreSend) Release(ctx context.Context, conv Conversation) {
	_, err := p.states.Update(ctx, conv.Key(), func(st PreSendState, exists bool) (PreSendState, error) {
		if !exists || st.Pending == "" {
			return st, store.ErrNoChange
		}
		st.Pending = ""
		st.PendingAt = time.Time{}
		return st, nil
	})
	if err != nil && !errors.Is(err, store.ErrNoChange) {
		utils.LogError("PreSendRelease", err, map[string]interface{}{"rule_id": conv.Rule.ID, "sender_id": conv.SenderID})
	}
}

// ResetRule forgets every conversation of a rule
func (p *PreSend) ResetRule(ctx context.Context, ruleID uint) error {
	return p.states.DeletePrefix(ctx, RulePrefix(ruleID))
}
