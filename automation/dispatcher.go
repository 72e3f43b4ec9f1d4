package automation

import (
	"context"
	"errors"
	"strings"

	"instaflow/flow"
	"instaflow/instagram"
	"instaflow/models"
	"instaflow/store"
	"instaflow/tracker"
	"instaflow/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reasons an event was dropped before any rule ran
const (
	SkipDuplicate = "duplicate"
	SkipEcho      = "echo"
	SkipEmpty     = "empty"
	SkipNoAccount = "no_account"
	SkipSelf      = "self"
	SkipNoRules   = "no_rules"
)

// Outcome reports what Handle did with one event
type Outcome struct {
	TraceID   string
	EventID   string
	Skipped   string
	AccountID uint
	Strategy  string
	Rules     []RuleOutcome
}

// RuleOutcome is the result for one matched rule
type RuleOutcome struct {
	RuleID  uint
	Action  string
	Sent    bool
	Limited string
	Err     error
}

// Config holds the Dispatcher's collaborators
type Config struct {
	DB          *gorm.DB
	Dedup       store.Deduplicator
	Resolver    *Resolver
	Audience    *tracker.AudienceTracker
	Usage       *tracker.UsageTracker
	Stats       *tracker.RuleStats
	DMLog       *tracker.DMLogStore
	PreSend     *flow.PreSend
	LeadCapture *flow.LeadCapture
	Messenger   instagram.Messenger
}

// Dispatcher runs every matching rule for an inbound event
type Dispatcher struct {
	db        *gorm.DB
	dedup     store.Deduplicator
	resolver  *Resolver
	audience  *tracker.AudienceTracker
	usage     *tracker.UsageTracker
	stats     *tracker.RuleStats
	dmlog     *tracker.DMLogStore
	presend   *flow.PreSend
	leads     *flow.LeadCapture
	messenger instagram.Messenger
}

func NewDispatcher(cfg Config) *Dispatcher {
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = NewResolver(cfg.DB)
	}
	dmlog := cfg.DMLog
	if dmlog == nil {
		dmlog = tracker.NewDMLogStore(cfg.DB)
	}
	return &Dispatcher{
		db:        cfg.DB,
		dedup:     cfg.Dedup,
		resolver:  resolver,
		audience:  cfg.Audience,
		usage:     cfg.Usage,
		stats:     cfg.Stats,
		dmlog:     dmlog,
		presend:   cfg.PreSend,
		leads:     cfg.LeadCapture,
		messenger: cfg.Messenger,
	}
}

// run carries the per-event context shared by every rule
type run struct {
	traceID      string
	ev           Event
	account      *models.InstagramAccount
	owner        *models.User
	obs          tracker.Observation
	vip          bool
	followRuleID uint
}

func (r *run) fields(ruleID uint) map[string]interface{} {
	return map[string]interface{}{
		"trace_id":   r.traceID,
		"event_id":   r.ev.ID,
		"account_id": r.account.ID,
		"sender_id":  r.ev.SenderID,
		"rule_id":    ruleID,
	}
}

// Handle processes one event. Only persistence outages are returned as errors;
// unmatched events and failed sends are logged and reported in the Outcome.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) (Outcome, error) {
	out := Outcome{TraceID: uuid.NewString(), EventID: ev.ID}

	first, err := d.dedup.MarkSeen(ctx, ev.ID)
	if err != nil {
		utils.LogError("DedupUnavailable", err, map[string]interface{}{"trace_id": out.TraceID, "event_id": ev.ID})
		first = true
	}
	if !first {
		out.Skipped = SkipDuplicate
		return out, nil
	}
	if ev.IsEcho {
		out.Skipped = SkipEcho
		return out, nil
	}
	if ev.Empty() {
		out.Skipped = SkipEmpty
		return out, nil
	}

	account, strategy, err := d.resolver.Resolve(ctx, ev)
	if errors.Is(err, ErrNotFound) {
		utils.LogEvent("WebhookNoAccount", map[string]interface{}{"trace_id": out.TraceID, "routing_id": ev.RoutingID})
		out.Skipped = SkipNoAccount
		return out, nil
	}
	if err != nil {
		return out, err
	}
	out.AccountID = account.ID
	out.Strategy = strategy

	if isSelf(account, ev) {
		out.Skipped = SkipSelf
		return out, nil
	}

	var owner models.User
	if err := d.db.WithContext(ctx).First(&owner, account.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			out.Skipped = SkipNoAccount
			return out, nil
		}
		return out, &tracker.PersistenceError{Op: "load account owner", Err: err}
	}

	r := &run{
		traceID: out.TraceID,
		ev:      ev,
		account: account,
		owner:   &owner,
		obs: tracker.Observation{
			OwnerID:   owner.ID,
			AccountID: account.ID,
			SenderID:  ev.SenderID,
			Username:  ev.Username,
		},
	}
	if id, ok := flow.ParseFollowPayload(ev.Payload); ok {
		r.followRuleID = id
	}

	if _, err := d.audience.Observe(ctx, r.obs); err != nil {
		return out, err
	}

	rules, err := d.candidates(ctx, r)
	if err != nil {
		return out, err
	}
	if len(rules) == 0 {
		out.Skipped = SkipNoRules
		return out, nil
	}

	if r.vip, err = d.audience.IsVIP(ctx, r.obs); err != nil {
		return out, err
	}

	var errs []error
	for _, rule := range rules {
		ro, err := d.runRule(ctx, r, rule)
		out.Rules = append(out.Rules, ro)
		if err != nil {
			errs = append(errs, err)
		}
	}

	utils.LogEvent("WebhookEventHandled", map[string]interface{}{
		"trace_id":   out.TraceID,
		"event_id":   ev.ID,
		"kind":       string(ev.Kind),
		"account_id": account.ID,
		"strategy":   strategy,
		"rules":      len(out.Rules),
	})
	return out, errors.Join(errs...)
}

func isSelf(account *models.InstagramAccount, ev Event) bool {
	if account.OwnsID(ev.SenderID) {
		return true
	}
	if ev.SenderID != "" && ev.SenderID == ev.RoutingID {
		return true
	}
	return ev.IsComment() && ev.Username != "" && strings.EqualFold(ev.Username, account.Username)
}

// candidates returns the matched rules plus, for DMs, any rule whose flow is waiting on this sender
func (d *Dispatcher) candidates(ctx context.Context, r *run) ([]*models.AutomationRule, error) {
	var active []models.AutomationRule
	if err := d.db.WithContext(ctx).
		Where("instagram_account_id = ? AND is_active = ?", r.account.ID, true).
		Order("id").
		Find(&active).Error; err != nil {
		return nil, &tracker.PersistenceError{Op: "load rules", Err: err}
	}

	matched := MatchRules(active, r.ev)
	if r.ev.IsComment() {
		return matched, nil
	}

	seen := make(map[uint]bool, len(matched))
	for _, rule := range matched {
		seen[rule.ID] = true
	}
	for i := range active {
		rule := &active[i]
		if seen[rule.ID] {
			continue
		}
		waiting := rule.ID == r.followRuleID
		if !waiting {
			conv := flow.Conversation{Rule: rule, SenderID: r.ev.SenderID}
			var err error
			if rule.Config.UsesLeadCapture() {
				waiting, err = d.leads.InProgress(ctx, conv)
			} else {
				waiting, err = d.presend.InProgress(ctx, conv)
			}
			if err != nil {
				utils.LogError("FlowStateUnavailable", err, r.fields(rule.ID))
				continue
			}
		}
		if waiting {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}

func (d *Dispatcher) runRule(ctx context.Context, r *run, rule *models.AutomationRule) (RuleOutcome, error) {
	ro := RuleOutcome{RuleID: rule.ID, Action: string(flow.ActionNone)}

	if err := d.stats.Increment(ctx, rule.ID, tracker.StatTriggered); err != nil {
		return ro, err
	}
	followClicked := rule.ID == r.followRuleID
	if followClicked {
		if err := d.stats.Increment(ctx, rule.ID, tracker.StatFollowClick); err != nil {
			return ro, err
		}
	}

	accountID := r.account.ID
	conv := flow.Conversation{Rule: rule, OwnerID: r.owner.ID, AccountID: &accountID, SenderID: r.ev.SenderID}
	if rule.Config.UsesLeadCapture() {
		return d.runLeadCapture(ctx, r, conv, ro)
	}
	return d.runPreSend(ctx, r, conv, followClicked, ro)
}

func (d *Dispatcher) runPreSend(ctx context.Context, r *run, conv flow.Conversation, followClicked bool, ro RuleOutcome) (RuleOutcome, error) {
	dec, err := d.presend.Step(ctx, conv, flow.Input{Text: r.ev.Text, FollowClicked: followClicked, VIP: r.vip})
	if err != nil {
		return ro, err
	}
	ro.Action = string(dec.Action)

	var errs []error
	if dec.FollowConfirmed {
		errs = append(errs, d.audience.RecordFollowing(ctx, r.obs))
	}
	if dec.Email != "" {
		errs = append(errs, d.audience.RecordEmail(ctx, r.obs, dec.Email))
	}
	if dec.Lead != nil {
		errs = append(errs, d.stats.Increment(ctx, conv.Rule.ID, tracker.StatLeadCaptured))
	}
	if !dec.Sends() {
		return ro, errors.Join(errs...)
	}

	claimed := dec.Action != flow.ActionRetryEmail
	del, err := d.deliver(ctx, r, conv.Rule, string(dec.Action), instagram.OutboundMessage{
		RecipientID: r.ev.SenderID,
		Text:        dec.Text,
		Buttons:     dec.Buttons,
	})
	ro = del.apply(ro)
	if err != nil || !del.Sent {
		if claimed {
			d.presend.Release(ctx, conv)
		}
		return ro, errors.Join(append(errs, err)...)
	}

	if claimed {
		if err := d.presend.Commit(ctx, conv, dec.Action); err != nil {
			utils.LogError("PreSendCommit", err, r.fields(conv.Rule.ID))
		}
	}
	errs = append(errs, del.counterErr)
	return ro, errors.Join(errs...)
}

func (d *Dispatcher) runLeadCapture(ctx context.Context, r *run, conv flow.Conversation, ro RuleOutcome) (RuleOutcome, error) {
	dec, err := d.leads.Step(ctx, conv, flow.Input{Text: r.ev.Text})
	if err != nil {
		if tracker.IsPersistenceError(err) {
			return ro, err
		}
		utils.LogError("LeadCaptureStep", err, r.fields(conv.Rule.ID))
		return ro, nil
	}
	ro.Action = string(dec.Action)

	var errs []error
	if dec.Lead != nil {
		errs = append(errs, d.stats.Increment(ctx, conv.Rule.ID, tracker.StatLeadCaptured))
		switch dec.FieldType {
		case models.FieldEmail:
			errs = append(errs, d.audience.RecordEmail(ctx, r.obs, dec.Value))
		case models.FieldPhone:
			errs = append(errs, d.audience.RecordPhone(ctx, r.obs, dec.Value))
		}
	}
	if !dec.Sends() {
		return ro, errors.Join(errs...)
	}

	del, err := d.deliver(ctx, r, conv.Rule, string(dec.Action), instagram.OutboundMessage{
		RecipientID: r.ev.SenderID,
		Text:        dec.Text,
	})
	ro = del.apply(ro)
	if err != nil || !del.Sent {
		d.leads.Release(ctx, conv, dec.Action)
		return ro, errors.Join(append(errs, err)...)
	}

	if err := d.leads.Commit(ctx, conv, dec.Action); err != nil {
		utils.LogError("LeadCaptureCommit", err, r.fields(conv.Rule.ID))
	}
	errs = append(errs, del.counterErr)
	return ro, errors.Join(errs...)
}

type delivery struct {
	Sent       bool
	Limited    string
	SendErr    error
	counterErr error
}

func (del delivery) apply(ro RuleOutcome) RuleOutcome {
	ro.Sent = del.Sent
	ro.Limited = del.Limited
	ro.Err = del.SendErr
	return ro
}

// deliver checks the DM quota, sends, and bumps the counters after a successful send.
// The returned error is a persistence failure only.
func (d *Dispatcher) deliver(ctx context.Context, r *run, rule *models.AutomationRule, action string, msg instagram.OutboundMessage) (delivery, error) {
	igID := r.account.PlatformID()
	limit, err := d.usage.CheckLimit(ctx, r.owner.ID, igID, r.owner.Tier(), tracker.LimitDMs)
	if err != nil {
		return delivery{}, err
	}
	if !limit.Allowed {
		fields := r.fields(rule.ID)
		fields["reason"] = limit.Reason
		utils.LogEvent("DMQuotaExceeded", fields)
		return delivery{Limited: limit.Reason}, nil
	}

	replied := r.ev.IsComment() && r.ev.CommentID != ""
	if replied {
		err = d.messenger.SendPrivateReply(ctx, r.account, r.ev.CommentID, msg.Text)
	} else {
		err = d.messenger.SendMessage(ctx, r.account, msg)
	}
	if err != nil {
		sendErr := &SendError{RuleID: rule.ID, Action: action, Err: err}
		utils.LogError("InstagramSendFailed", sendErr, r.fields(rule.ID))
		return delivery{SendErr: sendErr}, nil
	}

	channel := models.ChannelDM
	if replied {
		channel = models.ChannelPrivateReply
	}
	counterErrs := []error{
		d.usage.Increment(ctx, r.owner.ID, igID, tracker.LimitDMs),
		d.stats.Increment(ctx, rule.ID, tracker.StatDMSent),
		d.dmlog.Record(ctx, tracker.SentDM{
			OwnerID:           r.owner.ID,
			AccountID:         r.account.ID,
			RuleID:            rule.ID,
			RecipientID:       r.ev.SenderID,
			RecipientUsername: r.obs.Username,
			Action:            action,
			Channel:           channel,
			Message:           msg.Text,
		}),
	}
	if replied {
		counterErrs = append(counterErrs, d.stats.Increment(ctx, rule.ID, tracker.StatCommentReplied))
	}
	return delivery{Sent: true, counterErr: errors.Join(counterErrs...)}, nil
}
