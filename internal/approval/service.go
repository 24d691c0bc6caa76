package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fineflow/internal/chat"
	"github.com/fineflow/internal/ledger"
	"github.com/fineflow/internal/parse"
)

// Options wires a Service.
type Options struct {
	Poster chat.Poster
	// Ledger may be nil when no database is configured; quorum then reports
	// a persistence failure instead of writing.
	Ledger      ledger.Ledger
	Policy      Policy
	RemindAfter time.Duration
	// Location is the timezone ledger timestamps and the decision summary
	// are rendered in.
	Location *time.Location
	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// Service owns the request registry and the pending-reply table and drives
// the full request lifecycle. All inbound-event handlers are safe for
// concurrent use and never fail on malformed or duplicate input.
type Service struct {
	registry    *Registry
	policy      Policy
	poster      chat.Poster
	ledger      ledger.Ledger
	sched       ReminderScheduler
	pending     *handshakeTable
	remindAfter time.Duration
	loc         *time.Location
	now         func() time.Time
}

// NewService creates the approval service.
func NewService(opts Options) *Service {
	if opts.Policy.Required < 1 {
		opts.Policy.Required = 1
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	remindAfter := opts.RemindAfter
	if remindAfter <= 0 {
		remindAfter = 2 * time.Hour
	}

	return &Service{
		registry:    NewRegistry(),
		policy:      opts.Policy,
		poster:      opts.Poster,
		ledger:      opts.Ledger,
		pending:     newHandshakeTable(),
		remindAfter: remindAfter,
		loc:         loc,
		now:         now,
	}
}

// UseScheduler attaches the reminder scheduler. Must be called before the
// first submission; kept out of Options because the durable scheduler needs
// the service to exist first.
func (s *Service) UseScheduler(sched ReminderScheduler) {
	s.sched = sched
}

// Registry exposes the request registry to the reminder worker.
func (s *Service) Registry() *Registry {
	return s.registry
}

// HandleSubmission parses a submission, posts the interactive card,
// registers the request and schedules its reminder. Malformed submissions
// get a format hint and create nothing.
func (s *Service) HandleSubmission(ctx context.Context, conversation, sender, text string) error {
	fields, err := parse.Parse(text)
	if err != nil {
		var missing *parse.ErrMissingField
		if errors.As(err, &missing) {
			log.Info().Str("sender", sender).Str("field", missing.Field).Msg("malformed submission")
			if _, perr := s.poster.PostMessage(ctx, conversation, chat.MalformedSubmissionText(sender, err)); perr != nil {
				return fmt.Errorf("failed to report malformed submission: %w", perr)
			}
			return nil
		}
		return err
	}

	card := chat.BuildRequestCard(chat.CardInput{Fields: fields, Required: s.policy.Required})
	handle, err := s.poster.PostCard(ctx, conversation, card)
	if err != nil {
		return fmt.Errorf("failed to post request card: %w", err)
	}

	req, err := s.registry.Create(handle, conversation, fields, s.now())
	if err != nil {
		// Handles are platform-assigned, so a collision means the transport
		// redelivered our own post.
		log.Error().Err(err).Str("handle", handle).Msg("request registration failed")
		return err
	}

	if s.sched != nil {
		if err := s.sched.ScheduleReminder(ctx, handle, s.now().Add(s.remindAfter)); err != nil {
			// The request still works without its reminder.
			log.Error().Err(err).Str("handle", handle).Msg("failed to schedule reminder")
		}
	}

	log.Info().
		Str("handle", handle).
		Str("conversation", conversation).
		Str("ticket", req.Fields().Ticket).
		Msg("approval request created")
	return nil
}

// CastVote applies a vote to a request. It is the pure state transition;
// HandleVote adds the user-visible consequences.
func (s *Service) CastVote(handle string, voter Voter, kind VoteKind) VoteResult {
	req, ok := s.registry.Get(handle)
	if !ok {
		return VoteResult{Outcome: OutcomeIgnored, Required: s.policy.Required}
	}
	return req.applyVote(voter, kind, s.policy)
}

// HandleVote applies a vote and performs the outcome's side effects: card
// updates, the quorum finalization, or the rejection prompt.
func (s *Service) HandleVote(ctx context.Context, handle string, voter Voter, kind VoteKind) error {
	req, ok := s.registry.Get(handle)
	if !ok {
		log.Debug().Str("handle", handle).Str("voter", voter.ID).Msg("vote on unknown request dropped")
		return nil
	}

	res := req.applyVote(voter, kind, s.policy)
	conversation := req.Conversation()

	log.Info().
		Str("handle", handle).
		Str("voter", voter.ID).
		Stringer("outcome", res.Outcome).
		Int("approvals", res.Approvals).
		Msg("vote processed")

	switch res.Outcome {
	case OutcomeIgnored:
		return nil

	case OutcomeUnauthorized:
		_, err := s.poster.PostMessage(ctx, conversation, chat.UnauthorizedText(voter.ID))
		return err

	case OutcomeAlreadyVoted:
		_, err := s.poster.PostMessage(ctx, conversation, chat.AlreadyVotedText(voter.ID))
		return err

	case OutcomeApproved:
		return s.poster.EditCard(ctx, conversation, handle, s.renderCard(req, res.Snapshot))

	case OutcomeQuorum:
		return s.finalize(ctx, req, res.Snapshot)

	case OutcomeRejected:
		return s.beginRejection(ctx, req, voter, res.Snapshot)
	}
	return nil
}

// finalize runs once per request, on the quorum transition: it freezes the
// card, writes the ledger record and announces the result. A failed write
// leaves the request resolved; the operator is told to record it by hand.
func (s *Service) finalize(ctx context.Context, req *Request, snap Snapshot) error {
	conversation := req.Conversation()
	handle := req.Handle()
	fields := req.Fields()
	decidedAt := s.now()

	if err := s.poster.EditCard(ctx, conversation, handle, s.renderCard(req, snap)); err != nil {
		log.Error().Err(err).Str("handle", handle).Msg("failed to freeze approved card")
	}

	rec := ledger.Record{
		Ticket:        fields.Ticket,
		ViolationType: fields.ViolationType,
		Reason:        fields.Reason,
		Amount:        fields.Amount,
		Operator:      fields.Operator,
		Status:        ledger.StatusApproved,
		Approvers:     snap.ApprovalMentions(),
		DecidedAt:     decidedAt,
	}

	appendErr := s.appendRecord(ctx, rec, decidedAt)
	if appendErr != nil {
		log.Error().Err(appendErr).Str("handle", handle).Str("ticket", fields.Ticket).Msg("ledger append failed")
		if _, err := s.poster.PostMessage(ctx, conversation, chat.PersistenceErrorText(fields.Ticket, appendErr)); err != nil {
			return fmt.Errorf("failed to report persistence failure: %w", err)
		}
		return nil
	}

	_, err := s.poster.PostMessage(ctx, conversation,
		chat.ApprovedAnnouncementText(fields.Ticket, snap.ApprovalMentions(), decidedAt, s.loc))
	return err
}

func (s *Service) appendRecord(ctx context.Context, rec ledger.Record, decidedAt time.Time) error {
	if s.ledger == nil {
		return errors.New("ledger not configured")
	}
	return s.ledger.Append(ctx, ledger.PartitionKey(decidedAt, s.loc), rec)
}

// beginRejection freezes the card, asks the rejecting voter for their
// reason and registers the correlation entry the reply will be matched
// against.
func (s *Service) beginRejection(ctx context.Context, req *Request, voter Voter, snap Snapshot) error {
	conversation := req.Conversation()

	if err := s.poster.EditCard(ctx, conversation, req.Handle(), s.renderCard(req, snap)); err != nil {
		log.Error().Err(err).Str("handle", req.Handle()).Msg("failed to freeze rejected card")
	}

	prompt, err := s.poster.PromptReply(ctx, conversation, chat.RejectPromptText(voter.ID))
	if err != nil {
		// Without a prompt there is nothing to correlate a reply against;
		// the request stays rejected with no reason.
		return fmt.Errorf("failed to prompt for rejection reason: %w", err)
	}

	s.pending.put(
		pendingKey{conversation: conversation, voter: voter.ID},
		pendingReply{prompt: prompt, request: req.Handle()},
	)
	return nil
}

// HandleReply correlates an inbound reply against the pending-reply table.
// Replies that match no entry belong to unrelated conversation traffic and
// are ignored.
func (s *Service) HandleReply(ctx context.Context, conversation, sender, repliedTo, replyHandle, text string) error {
	key := pendingKey{conversation: conversation, voter: sender}
	entry, ok := s.pending.consume(key, repliedTo)
	if !ok {
		return nil
	}

	req, found := s.registry.Get(entry.request)
	if !found {
		log.Warn().Str("handle", entry.request).Msg("pending reply references unknown request")
		return nil
	}

	snap := req.setRejectionReason(strings.TrimSpace(text))

	log.Info().
		Str("handle", req.Handle()).
		Str("voter", sender).
		Msg("rejection reason collected")

	if err := s.poster.EditCard(ctx, conversation, req.Handle(), s.renderCard(req, snap)); err != nil {
		return fmt.Errorf("failed to finalize rejected card: %w", err)
	}

	// Prompt and reply are conversation noise once the card shows the
	// reason; cleanup failures are not worth surfacing.
	if err := s.poster.DeleteMessage(ctx, conversation, entry.prompt); err != nil {
		log.Debug().Err(err).Str("handle", entry.prompt).Msg("prompt cleanup failed")
	}
	if replyHandle != "" {
		if err := s.poster.DeleteMessage(ctx, conversation, replyHandle); err != nil {
			log.Debug().Err(err).Str("handle", replyHandle).Msg("reply cleanup failed")
		}
	}
	return nil
}

// FireReminder is invoked by the scheduler once per request, remindAfter
// after creation. It reads live state at fire time: a resolved or unknown
// request makes it a no-op.
func (s *Service) FireReminder(ctx context.Context, handle string) error {
	req, ok := s.registry.Get(handle)
	if !ok {
		return nil
	}

	snap := req.Snapshot()
	if snap.Resolved {
		return nil
	}

	pending := s.policy.PendingApprovers(snap.Approvals)
	log.Info().Str("handle", handle).Strs("pending", pending).Msg("sending reminder")

	_, err := s.poster.PostMessage(ctx, req.Conversation(), chat.ReminderText(pending))
	if err != nil {
		return fmt.Errorf("failed to send reminder: %w", err)
	}
	return nil
}

// PendingReplies reports the number of rejections still waiting for a
// reason, for diagnostics.
func (s *Service) PendingReplies() int {
	return s.pending.len()
}

func (s *Service) renderCard(req *Request, snap Snapshot) chat.Card {
	return chat.BuildRequestCard(chat.CardInput{
		Fields:          req.Fields(),
		Approvals:       snap.ApprovalMentions(),
		Required:        s.policy.Required,
		Resolved:        snap.Resolved,
		Rejected:        snap.Rejected,
		RejectedBy:      snap.RejectedBy.Mention,
		RejectionReason: snap.RejectionReason,
	})
}
