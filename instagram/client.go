// Package instagram talks to the Instagram messaging platform: the outbound Graph API calls
// and the shape of the webhook deliveries it sends us.
package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"instaflow/config"
	"instaflow/models"
	"instaflow/utils"

	"github.com/valyala/fasthttp"
)

// OutboundMessage is a DM to one end user
type OutboundMessage struct {
	RecipientID string
	Text        string
	Buttons     []models.Button
	MediaURL    string
}

// Messenger sends messages on behalf of a connected account.
// Both calls report success or failure only; retries are the caller's business.
type Messenger interface {
	SendMessage(ctx context.Context, account *models.InstagramAccount, msg OutboundMessage) error
	SendPrivateReply(ctx context.Context, account *models.InstagramAccount, commentID, text string) error
}

// APIError is a non-2xx answer from the Graph API
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("graph api %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("graph api %d: %s", e.StatusCode, e.Message)
}

var ErrMissingToken = errors.New("instagram account has no page token")

// GraphClient is the fasthttp-backed Messenger
type GraphClient struct {
	client        *fasthttp.Client
	baseURL       string
	version       string
	encryptionKey string
	timeout       time.Duration
}

func NewGraphClient(cfg config.InstagramConfig, encryptionKey string) *GraphClient {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GraphClient{
		client: &fasthttp.Client{
			Name:                "instaflow",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		baseURL:       strings.TrimRight(cfg.GraphAPIURL, "/"),
		version:       cfg.APIVersion,
		encryptionKey: encryptionKey,
		timeout:       timeout,
	}
}

type sendRequest struct {
	Recipient recipient   `json:"recipient"`
	Message   messageBody `json:"message"`
}

type recipient struct {
	ID string `json:"id"`
}

type messageBody struct {
	Text         string       `json:"text,omitempty"`
	QuickReplies []quickReply `json:"quick_replies,omitempty"`
	Attachment   *attachment  `json:"attachment,omitempty"`
}

type quickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

type attachment struct {
	Type    string            `json:"type"`
	Payload attachmentPayload `json:"payload"`
}

type attachmentPayload struct {
	TemplateType string         `json:"template_type,omitempty"`
	Text         string         `json:"text,omitempty"`
	Buttons      []templateItem `json:"buttons,omitempty"`
	URL          string         `json:"url,omitempty"`
}

type templateItem struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Payload string `json:"payload,omitempty"`
	URL     string `json:"url,omitempty"`
}

type graphErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// buildMessage renders text and buttons into a Send API message body.
// Quick replies stay plain text; postback and url buttons need a button template.
func buildMessage(msg OutboundMessage) messageBody {
	var (
		quick    []quickReply
		template []templateItem
	)
	for _, b := range msg.Buttons {
		switch b.Type {
		case "quick_reply":
			quick = append(quick, quickReply{ContentType: "text", Title: b.Title, Payload: b.Payload})
		case "web_url":
			template = append(template, templateItem{Type: "web_url", Title: b.Title, URL: b.URL})
		default:
			template = append(template, templateItem{Type: "postback", Title: b.Title, Payload: b.Payload})
		}
	}

	if len(template) > 0 {
		return messageBody{
			Attachment: &attachment{
				Type: "template",
				Payload: attachmentPayload{
					TemplateType: "button",
					Text:         msg.Text,
					Buttons:      template,
				},
			},
			QuickReplies: quick,
		}
	}
	return messageBody{Text: msg.Text, QuickReplies: quick}
}

func (c *GraphClient) token(account *models.InstagramAccount) (string, error) {
	if account.EncryptedPageToken == "" {
		return "", ErrMissingToken
	}
	token, err := utils.DecryptToken(c.encryptionKey, account.EncryptedPageToken)
	if err != nil {
		return "", fmt.Errorf("decrypt page token: %w", err)
	}
	return token, nil
}

func (c *GraphClient) endpoint(parts ...string) string {
	return c.baseURL + "/" + c.version + "/" + strings.Join(parts, "/")
}

// SendMessage posts a DM through the account's page, or /me when no page id is stored
func (c *GraphClient) SendMessage(ctx context.Context, account *models.InstagramAccount, msg OutboundMessage) error {
	token, err := c.token(account)
	if err != nil {
		return err
	}
	node := "me"
	if account.PageID != nil && *account.PageID != "" {
		node = *account.PageID
	}
	url := c.endpoint(node, "messages")

	if err := c.post(ctx, url, token, sendRequest{
		Recipient: recipient{ID: msg.RecipientID},
		Message:   buildMessage(msg),
	}); err != nil {
		return err
	}
	if msg.MediaURL == "" {
		return nil
	}
	return c.post(ctx, url, token, sendRequest{
		Recipient: recipient{ID: msg.RecipientID},
		Message: messageBody{Attachment: &attachment{
			Type:    "image",
			Payload: attachmentPayload{URL: msg.MediaURL},
		}},
	})
}

// SendPrivateReply answers a comment with a DM to its author
func (c *GraphClient) SendPrivateReply(ctx context.Context, account *models.InstagramAccount, commentID, text string) error {
	token, err := c.token(account)
	if err != nil {
		return err
	}
	return c.post(ctx, c.endpoint(commentID, "private_replies"), token, map[string]string{"message": text})
}

func (c *GraphClient) post(ctx context.Context, url, token string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ctx.Err()
		}
		if remaining < timeout {
			timeout = remaining
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.SetBody(body)

	if err := c.client.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("graph api request: %w", err)
	}

	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: status, Message: string(resp.Body())}
	var parsed graphErrorBody
	if json.Unmarshal(resp.Body(), &parsed) == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
		apiErr.Code = parsed.Error.Code
	}
	return apiErr
}
