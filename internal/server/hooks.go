package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/fineflow/internal/approval"
	"github.com/fineflow/internal/chat"
)

// messagePayload is the outgoing-webhook body the chat platform posts for
// channel messages. RootID is empty for top-level messages and carries the
// thread root for replies.
type messagePayload struct {
	Token       string `json:"token"`
	ChannelID   string `json:"channel_id"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	PostID      string `json:"post_id"`
	RootID      string `json:"root_id"`
	Text        string `json:"text"`
	TriggerWord string `json:"trigger_word"`
}

// actionPayload is the interactive-button callback body. The shared token is
// echoed back inside the integration context the card was posted with.
type actionPayload struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	ChannelID string `json:"channel_id"`
	PostID    string `json:"post_id"`
	Context   struct {
		Action string `json:"action"`
		Token  string `json:"token"`
	} `json:"context"`
}

func (s *Server) messageHook(c echo.Context) error {
	var p messagePayload
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed payload"})
	}
	if s.cfg.WebhookToken != "" && p.Token != s.cfg.WebhookToken {
		log.Warn().Str("channel", p.ChannelID).Msg("message hook with bad token")
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}
	if s.svc == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "service not configured"})
	}
	// The bot's own posts come back through the webhook; skip them.
	if s.cfg.BotUser != "" && p.UserName == s.cfg.BotUser {
		return c.NoContent(http.StatusOK)
	}

	svc := s.svc
	if p.RootID != "" {
		// Threaded reply: candidate rejection reason.
		ok := s.dispatcher.Enqueue(func(ctx context.Context) {
			if err := svc.HandleReply(ctx, p.ChannelID, p.UserID, p.RootID, p.PostID, p.Text); err != nil {
				log.Error().Err(err).Str("channel", p.ChannelID).Msg("reply handling failed")
			}
		})
		if !ok {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "busy"})
		}
		return c.NoContent(http.StatusOK)
	}

	text := strings.TrimSpace(strings.TrimPrefix(p.Text, p.TriggerWord))
	ok := s.dispatcher.Enqueue(func(ctx context.Context) {
		if err := svc.HandleSubmission(ctx, p.ChannelID, p.UserName, text); err != nil {
			log.Error().Err(err).Str("channel", p.ChannelID).Msg("submission handling failed")
		}
	})
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "busy"})
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) actionHook(c echo.Context) error {
	var p actionPayload
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed payload"})
	}
	if s.cfg.WebhookToken != "" && p.Context.Token != s.cfg.WebhookToken {
		log.Warn().Str("post", p.PostID).Msg("action hook with bad token")
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}
	if s.svc == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "service not configured"})
	}

	var kind approval.VoteKind
	switch p.Context.Action {
	case chat.ActionApprove:
		kind = approval.VoteApprove
	case chat.ActionReject:
		kind = approval.VoteReject
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown action"})
	}

	voter := approval.Voter{ID: p.UserID, Mention: "@" + p.UserName}
	svc := s.svc
	handle := p.PostID
	ok := s.dispatcher.Enqueue(func(ctx context.Context) {
		if err := svc.HandleVote(ctx, handle, voter, kind); err != nil {
			log.Error().Err(err).Str("request", handle).Msg("vote handling failed")
		}
	})
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "busy"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
