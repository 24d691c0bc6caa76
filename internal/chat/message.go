package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/fineflow/internal/parse"
)

// Mention renders a handle in the platform's mention form.
func Mention(handle string) string {
	if strings.HasPrefix(handle, "@") {
		return handle
	}
	return "@" + handle
}

// CardInput carries everything needed to render a request card in any of
// its lifecycle states.
type CardInput struct {
	Fields    parse.Fields
	Approvals []string // mention names, in vote order
	Required  int
	Resolved  bool
	Rejected  bool
	// RejectedBy is set once a reject vote resolved the request.
	RejectedBy string
	// RejectionReason is set once the handshake collected it.
	RejectionReason string
}

// BuildRequestCard renders the interactive card for a request. Buttons stay
// on while the request is open and disappear once it resolves.
func BuildRequestCard(in CardInput) Card {
	var b strings.Builder

	b.WriteString("**Fine approval request**\n")
	fmt.Fprintf(&b, "| Ticket | %s |\n", in.Fields.Ticket)
	fmt.Fprintf(&b, "| Violation | %s |\n", in.Fields.ViolationType)
	fmt.Fprintf(&b, "| Reason | %s |\n", in.Fields.Reason)
	if in.Fields.Amount != "" {
		fmt.Fprintf(&b, "| Amount | %s |\n", in.Fields.Amount)
	}
	if in.Fields.Operator != "" {
		fmt.Fprintf(&b, "| Operator | %s |\n", in.Fields.Operator)
	}
	b.WriteString("\n")
	b.WriteString(statusLine(in))

	return Card{Text: b.String(), Actions: !in.Resolved}
}

func statusLine(in CardInput) string {
	switch {
	case in.Rejected && in.RejectionReason != "":
		return fmt.Sprintf(":no_entry: Rejected by %s — %s", in.RejectedBy, in.RejectionReason)
	case in.Rejected:
		return fmt.Sprintf(":no_entry: Rejected by %s, awaiting reason", in.RejectedBy)
	case in.Resolved:
		return fmt.Sprintf(":white_check_mark: Approved by %s", strings.Join(in.Approvals, ", "))
	case len(in.Approvals) > 0:
		return fmt.Sprintf("Approvals: %d/%d (%s)", len(in.Approvals), in.Required, strings.Join(in.Approvals, ", "))
	default:
		return fmt.Sprintf("Approvals: 0/%d", in.Required)
	}
}

// MalformedSubmissionText tells the submitter what was wrong and shows the
// expected format.
func MalformedSubmissionText(sender string, err error) string {
	return fmt.Sprintf("%s could not read that submission: %v\n\n%s", Mention(sender), err, parse.Usage)
}

// UnauthorizedText tells a voter they are not on the approver list.
func UnauthorizedText(voter string) string {
	return fmt.Sprintf("%s you are not authorized to vote on fine approvals.", Mention(voter))
}

// AlreadyVotedText tells a voter their earlier vote already counted.
func AlreadyVotedText(voter string) string {
	return fmt.Sprintf("%s you have already voted on this request.", Mention(voter))
}

// RejectPromptText asks the rejecting voter for a reason, as a reply.
func RejectPromptText(voter string) string {
	return fmt.Sprintf("%s please reply to this message with the rejection reason.", Mention(voter))
}

// ReminderText nudges the approvers who have not voted approve yet. With no
// configured allow-list there is nobody specific to name.
func ReminderText(pending []string) string {
	if len(pending) == 0 {
		return "A fine approval request is still waiting for votes."
	}
	mentions := make([]string, 0, len(pending))
	for _, p := range pending {
		mentions = append(mentions, Mention(p))
	}
	return fmt.Sprintf("%s a fine approval request is still waiting for your vote.", strings.Join(mentions, " "))
}

// PersistenceErrorText reports a failed ledger write. The request stays
// approved; the operator retries the write by hand.
func PersistenceErrorText(ticket string, err error) string {
	return fmt.Sprintf(":warning: Approved, but recording %s in the ledger failed: %v\nThe record was NOT written; please add it manually.", ticket, err)
}

// ApprovedAnnouncementText is posted to the conversation when quorum is
// reached and the record was written.
func ApprovedAnnouncementText(ticket string, approvers []string, decidedAt time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("Fine %s approved by %s at %s and recorded in the ledger.",
		ticket,
		strings.Join(approvers, ", "),
		decidedAt.In(loc).Format("2006-01-02 15:04"),
	)
}
