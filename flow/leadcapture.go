package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"instaflow/models"
	"instaflow/store"
	"instaflow/tracker"
	"instaflow/utils"
)

const DefaultThankYouMessage = "Thank you! We'll be in touch soon."

// LeadAction is the outbound message of a lead capture step
type LeadAction string

const (
	LeadNone     LeadAction = "none"
	LeadAsk      LeadAction = "ask"
	LeadReprompt LeadAction = "reprompt"
	LeadThankYou LeadAction = "thank_you"
)

// LeadState is the persisted progress of one lead capture conversation
type LeadState struct {
	Asked     bool      `json:"asked"`
	Completed bool      `json:"completed"`
	Attempts  int       `json:"attempts"`
	PendingAt time.Time `json:"pending_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LeadDecision is the result of a lead capture step
type LeadDecision struct {
	Action LeadAction
	Text   string

	// Field and Value describe the answer accepted by this step
	Field     string
	FieldType models.FieldType
	Value     string
	Lead      *models.CapturedLead
}

func (d LeadDecision) Sends() bool {
	return d.Action != LeadNone && d.Action != ""
}

// LeadWriter persists captured answers
type LeadWriter interface {
	Save(ctx context.Context, in tracker.NewLead) (*models.CapturedLead, error)
}

// LeadCapture runs a rule's ask/save/send flow
type LeadCapture struct {
	states   store.StateStore[LeadState]
	leads    LeadWriter
	claimTTL time.Duration
	now      func() time.Time
}

func NewLeadCapture(states store.StateStore[LeadState], leads LeadWriter) *LeadCapture {
	return &LeadCapture{
		states:   states,
		leads:    leads,
		claimTTL: DefaultClaimTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// InProgress reports whether the conversation is waiting on an answer
func (l *LeadCapture) InProgress(ctx context.Context, conv Conversation) (bool, error) {
	st, ok, err := l.states.Get(ctx, conv.Key())
	if err != nil || !ok {
		return false, err
	}
	return st.Asked && !st.Completed, nil
}

// Step sends the prompt on first contact, then validates each reply until one is accepted and saved
func (l *LeadCapture) Step(ctx context.Context, conv Conversation, in Input) (LeadDecision, error) {
	cfg := conv.Rule.Config
	ask, ok := cfg.Step(models.StepAsk)
	if !ok {
		return LeadDecision{Action: LeadNone}, fmt.Errorf("rule %d has no ask step", conv.Rule.ID)
	}
	fieldType := ask.ValueType()
	now := l.now()

	var d LeadDecision
	_, err := l.states.Update(ctx, conv.Key(), func(st LeadState, _ bool) (LeadState, error) {
		d = LeadDecision{Action: LeadNone}
		if st.Completed {
			return st, store.ErrNoChange
		}
		if !st.Asked {
			if !st.PendingAt.IsZero() && now.Sub(st.PendingAt) < l.claimTTL {
				return st, store.ErrNoChange
			}
			d.Action = LeadAsk
			d.Text = ask.Text
			st.PendingAt = now
			st.UpdatedAt = now
			return st, nil
		}

		value, err := utils.ValidateField(fieldType, in.Text)
		if err != nil {
			d.Action = LeadReprompt
			d.Text = repromptText(err, ask.Text)
			st.Attempts++
			st.UpdatedAt = now
			return st, nil
		}
		d.Field = ask.Field
		d.FieldType = fieldType
		d.Value = value
		st.Completed = true
		st.UpdatedAt = now
		return st, nil
	})
	if errors.Is(err, store.ErrNoChange) {
		return d, nil
	}
	if err != nil {
		return LeadDecision{Action: LeadNone}, fmt.Errorf("lead capture step: %w", err)
	}
	if d.Value == "" {
		return d, nil
	}

	lead, err := l.leads.Save(ctx, buildLead(conv, d))
	if err != nil {
		l.reopen(ctx, conv)
		return LeadDecision{Action: LeadNone}, err
	}
	d.Lead = lead
	d.Action = LeadThankYou
	send, _ := cfg.Step(models.StepSend)
	d.Text = utils.PickMessage(send.MessageVariations, utils.FirstNonEmpty(send.Message, send.Text, DefaultThankYouMessage))
	return d, nil
}

func repromptText(err error, prompt string) string {
	var ve *utils.ValidationError
	if errors.As(err, &ve) {
		return ve.Message + "\n\n" + prompt
	}
	return prompt
}

func buildLead(conv Conversation, d LeadDecision) tracker.NewLead {
	in := tracker.NewLead{
		OwnerID:   conv.OwnerID,
		AccountID: conv.AccountID,
		RuleID:    conv.Rule.ID,
		SenderID:  conv.SenderID,
		Channel:   models.CapturedViaLeadCapture,
	}
	target := d.Field
	for _, s := range conv.Rule.Config.LeadCaptureFlow {
		if s.Type == models.StepSave && s.Field != "" {
			target = s.Field
			break
		}
	}

	switch {
	case d.FieldType == models.FieldEmail:
		in.Email = d.Value
	case d.FieldType == models.FieldPhone:
		in.Phone = d.Value
	case target == "name":
		in.Name = d.Value
	default:
		in.CustomFields = map[string]interface{}{utils.FirstNonEmpty(target, "answer"): d.Value}
	}
	return in
}

func (l *LeadCapture) reopen(ctx context.Context, conv Conversation) {
	_, err := l.states.Update(ctx, conv.Key(), func(st LeadState, _ bool) (LeadState, error) {
		st.Completed = false
		return st, nil
	})
	if err != nil {
		utils.LogError("LeadCaptureReopen", err, map[string]interface{}{"rule_id": conv.Rule.ID, "sender_id": conv.SenderID})
	}
}

// Commit settles a delivered message. A delivered thank-you ends the flow so the next trigger starts over.
func (l *LeadCapture) Commit(ctx context.Context, conv Conversation, action LeadAction) error {
	switch action {
	case LeadThankYou:
		return l.states.Delete(ctx, conv.Key())
	case LeadAsk:
		_, err := l.states.Update(ctx, conv.Key(), func(st LeadState, _ bool) (LeadState, error) {
			st.Asked = true
			st.PendingAt = time.Time{}
			return st, nil
		})
		return err
	}
	return nil
}

// Release drops an unsent prompt claim. An undelivered thank-you still ends the flow since the lead is saved.
func (l *LeadCapture) Release(ctx context.Context, conv Conversation, action LeadAction) {
	if action == LeadThankYou {
		if err := l.states.Delete(ctx, conv.Key()); err != nil {
			utils.LogError("LeadCaptureRelease", err, map[string]interface{}{"rule_id": conv.Rule.ID, "sender_id": conv.SenderID})
		}
		return
	}
	if action != LeadAsk {
		return
	}
	_, err := l.states.Update(ctx, conv.Key(), func(st LeadState, exists bool) (LeadState, error) {
		if !exists || st.Asked {
			return st, store.ErrNoChange
		}
		st.PendingAt = time.Time{}
		return st, nil
	})
	if err != nil && !errors.Is(err, store.ErrNoChange) {
		utils.LogError("LeadCaptureRelease", err, map[string]interface{}{"rule_id": conv.Rule.ID, "sender_id": conv.SenderID})
	}
}

// ResetRule forgets every lead capture conversation of a rule
func (l *LeadCapture) ResetRule(ctx context.Context, ruleID uint) error {
	return l.states.DeletePrefix(ctx, RulePrefix(ruleID))
}
