package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/fineflow/internal/retry"
)

// ClientConfig configures the REST client.
type ClientConfig struct {
	// BaseURL of the chat platform, e.g. https://chat.example.com
	BaseURL string
	// Token is the bot's access token.
	Token string
	// ActionURL is the public endpoint button callbacks are delivered to.
	ActionURL string
	// ActionToken is echoed back in the button context so the callback
	// endpoint can authenticate deliveries.
	ActionToken string
	// RequestsPerSecond caps outbound API calls (default 5).
	RequestsPerSecond float64
}

// Client talks to the chat platform's post API. All methods are safe for
// concurrent use; outbound calls share one rate limiter.
type Client struct {
	baseURL     string
	token       string
	actionURL   string
	actionToken string
	http        *http.Client
	limiter     *rate.Limiter
	retryCfg    retry.Config
}

// NewClient creates a chat client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing chat base URL")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("missing chat token")
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		actionURL:   cfg.ActionURL,
		actionToken: cfg.ActionToken,
		http:        &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		retryCfg:    retry.DefaultConfig(),
	}, nil
}

type postPayload struct {
	ChannelID string         `json:"channel_id"`
	Message   string         `json:"message"`
	RootID    string         `json:"root_id,omitempty"`
	Props     map[string]any `json:"props,omitempty"`
}

type postResponse struct {
	ID string `json:"id"`
}

// PostCard posts an interactive request card and returns its message ID.
func (c *Client) PostCard(ctx context.Context, conversation string, card Card) (string, error) {
	payload := postPayload{
		ChannelID: conversation,
		Message:   card.Text,
		Props:     c.cardProps(card),
	}

	var resp postResponse
	if err := c.do(ctx, http.MethodPost, "/api/v4/posts", payload, &resp); err != nil {
		return "", fmt.Errorf("failed to post card: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("chat platform returned no message id")
	}
	return resp.ID, nil
}

// EditCard replaces the card's text and actions in place.
func (c *Client) EditCard(ctx context.Context, conversation, handle string, card Card) error {
	payload := map[string]any{
		"message": card.Text,
		"props":   c.cardProps(card),
	}
	if err := c.do(ctx, http.MethodPut, "/api/v4/posts/"+handle+"/patch", payload, nil); err != nil {
		return fmt.Errorf("failed to edit card %s: %w", handle, err)
	}
	return nil
}

// PostMessage posts a plain message.
func (c *Client) PostMessage(ctx context.Context, conversation, text string) (string, error) {
	var resp postResponse
	err := c.do(ctx, http.MethodPost, "/api/v4/posts", postPayload{ChannelID: conversation, Message: text}, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to post message: %w", err)
	}
	return resp.ID, nil
}

// PromptReply posts a message whose ID a later reply references as root.
func (c *Client) PromptReply(ctx context.Context, conversation, text string) (string, error) {
	var resp postResponse
	err := c.do(ctx, http.MethodPost, "/api/v4/posts", postPayload{ChannelID: conversation, Message: text}, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to post prompt: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("chat platform returned no message id")
	}
	return resp.ID, nil
}

// DeleteMessage removes a message. Callers treat the error as advisory.
func (c *Client) DeleteMessage(ctx context.Context, conversation, handle string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/v4/posts/"+handle, nil, nil); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", handle, err)
	}
	return nil
}

// cardProps renders the Approve/Reject buttons as message attachments whose
// callbacks hit our action endpoint.
func (c *Client) cardProps(card Card) map[string]any {
	if !card.Actions {
		return nil
	}
	button := func(id, name, style string) map[string]any {
		return map[string]any{
			"id":    id,
			"name":  name,
			"style": style,
			"integration": map[string]any{
				"url":     c.actionURL,
				"context": map[string]any{"action": id, "token": c.actionToken},
			},
		}
	}
	return map[string]any{
		"attachments": []map[string]any{
			{
				"actions": []map[string]any{
					button(ActionApprove, "Approve", "primary"),
					button(ActionReject, "Reject", "danger"),
				},
			},
		},
	}
}

// do performs one API call with rate limiting and backoff on transient
// failures. Every attempt of one logical call shares a request ID, so the
// platform can deduplicate retried posts.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	requestID := uuid.NewString()

	return retry.Do(ctx, c.retryCfg, method+" "+path, func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("X-Request-Id", requestID)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("HTTP request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("chat API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}

		log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("chat API call")
		return nil
	})
}
