package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// TriggerType is the category of inbound event a rule reacts to
type TriggerType string

const (
	TriggerNewMessage  TriggerType = "new_message"
	TriggerKeyword     TriggerType = "keyword"
	TriggerPostComment TriggerType = "post_comment"
	TriggerLiveComment TriggerType = "live_comment"
)

// TriggerTypes lists every known trigger type
var TriggerTypes = []TriggerType{TriggerNewMessage, TriggerKeyword, TriggerPostComment, TriggerLiveComment}

func (t TriggerType) Valid() bool {
	switch t {
	case TriggerNewMessage, TriggerKeyword, TriggerPostComment, TriggerLiveComment:
		return true
	}
	return false
}

func ParseTriggerType(s string) (TriggerType, error) {
	t := TriggerType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown trigger type %q", s)
	}
	return t, nil
}

// ActionType is what a matched rule does
type ActionType string

const (
	ActionSendDM ActionType = "send_dm"
)

func (a ActionType) Valid() bool {
	return a == ActionSendDM
}

func ParseActionType(s string) (ActionType, error) {
	a := ActionType(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown action type %q", s)
	}
	return a, nil
}

// FlowStepType is one stage of a lead capture flow
type FlowStepType string

const (
	StepAsk  FlowStepType = "ask"
	StepSave FlowStepType = "save"
	StepSend FlowStepType = "send"
)

// FieldType is the kind of value an ask step collects
type FieldType string

const (
	FieldEmail FieldType = "email"
	FieldPhone FieldType = "phone"
	FieldText  FieldType = "text"
)

func (f FieldType) Valid() bool {
	switch f {
	case FieldEmail, FieldPhone, FieldText:
		return true
	}
	return false
}

// LeadFlowStep is one entry of a rule's lead_capture_flow
type LeadFlowStep struct {
	Type              FlowStepType `json:"type"`
	Field             string       `json:"field,omitempty"`
	FieldType         FieldType    `json:"field_type,omitempty"`
	Validation        string       `json:"validation,omitempty"`
	Text              string       `json:"text,omitempty"`
	Message           string       `json:"message,omitempty"`
	MessageVariations []string     `json:"message_variations,omitempty"`
}

// ValueType is the field type an ask step validates against. An explicit
// field_type wins, then a validation hint of email or phone, then text.
func (s LeadFlowStep) ValueType() FieldType {
	if s.FieldType.Valid() {
		return s.FieldType
	}
	switch v := FieldType(strings.ToLower(strings.TrimSpace(s.Validation))); v {
	case FieldEmail, FieldPhone:
		return v
	}
	return FieldText
}

// RuleConfig is the free-form configuration document of an automation rule
type RuleConfig struct {
	Keyword  string   `json:"keyword,omitempty"`
	Keywords []string `json:"keywords,omitempty"`

	MessageTemplate   string   `json:"message_template,omitempty"`
	MessageVariations []string `json:"message_variations,omitempty"`

	AskToFollow        bool   `json:"ask_to_follow,omitempty"`
	AskToFollowMessage string `json:"ask_to_follow_message,omitempty"`
	FollowButtonText   string `json:"follow_button_text,omitempty"`

	AskForEmail        bool   `json:"ask_for_email,omitempty"`
	AskForEmailMessage string `json:"ask_for_email_message,omitempty"`
	EmailRetryMessage  string `json:"email_retry_message,omitempty"`

	IsLeadCapture   bool           `json:"is_lead_capture,omitempty"`
	LeadCaptureFlow []LeadFlowStep `json:"lead_capture_flow,omitempty"`

	MediaID string `json:"media_id,omitempty"`
}

// KeywordList merges keyword and keywords, dropping blanks
func (c RuleConfig) KeywordList() []string {
	var out []string
	if k := strings.TrimSpace(c.Keyword); k != "" {
		out = append(out, k)
	}
	for _, k := range c.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Step returns the first flow step of the given type
func (c RuleConfig) Step(t FlowStepType) (LeadFlowStep, bool) {
	for _, s := range c.LeadCaptureFlow {
		if s.Type == t {
			return s, true
		}
	}
	return LeadFlowStep{}, false
}

// UsesLeadCapture reports whether the rule runs the lead capture engine
func (c RuleConfig) UsesLeadCapture() bool {
	if !c.IsLeadCapture {
		return false
	}
	_, ok := c.Step(StepAsk)
	return ok
}

// AutomationRule maps an inbound trigger to an outbound DM flow
type AutomationRule struct {
	ID                 uint        `gorm:"primaryKey" json:"id"`
	UserID             uint        `gorm:"not null;index" json:"user_id"`
	InstagramAccountID *uint       `gorm:"index" json:"instagram_account_id"`
	Name               string      `gorm:"not null" json:"name"`
	TriggerType        TriggerType `gorm:"type:varchar(32);not null;index" json:"trigger_type"`
	ActionType         ActionType  `gorm:"type:varchar(32);not null;default:'send_dm'" json:"action_type"`
	Config             RuleConfig  `gorm:"type:jsonb;serializer:json" json:"config"`
	MediaID            *string     `gorm:"index" json:"media_id,omitempty"`
	IsActive           bool        `gorm:"default:true;index" json:"is_active"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ScopedMediaID returns the post a rule is restricted to, if any
func (r *AutomationRule) ScopedMediaID() string {
	if r.MediaID != nil && *r.MediaID != "" {
		return *r.MediaID
	}
	return r.Config.MediaID
}

// AutomationRuleStats aggregates counters for one rule
type AutomationRuleStats struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	AutomationRuleID    uint       `gorm:"not null;uniqueIndex" json:"automation_rule_id"`
	TotalTriggers       int64      `gorm:"not null;default:0" json:"total_triggers"`
	TotalDMsSent        int64      `gorm:"column:total_dms_sent;not null;default:0" json:"total_dms_sent"`
	TotalCommentReplies int64      `gorm:"not null;default:0" json:"total_comment_replies"`
	TotalLeadsCaptured  int64      `gorm:"not null;default:0" json:"total_leads_captured"`
	TotalFollowClicks   int64      `gorm:"not null;default:0" json:"total_follow_clicks"`
	LastTriggeredAt     *time.Time `json:"last_triggered_at,omitempty"`
	LastDMSentAt        *time.Time `json:"last_dm_sent_at,omitempty"`
	LastLeadCapturedAt  *time.Time `json:"last_lead_captured_at,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Button is a quick-reply or postback button attached to an outbound DM
type Button struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Payload string `json:"payload,omitempty"`
	URL     string `json:"url,omitempty"`
}
