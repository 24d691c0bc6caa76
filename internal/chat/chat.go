/*
Package chat is the transport boundary to the chat platform. The approval
core talks to the platform exclusively through the Poster interface; the
concrete Client speaks the platform's REST API.
*/
package chat

import "context"

// Action identifiers carried in interactive card buttons and echoed back in
// action callbacks.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Card is an interactive message with optional Approve/Reject buttons.
type Card struct {
	Text string
	// Actions enables the Approve/Reject buttons. Resolved cards are
	// re-rendered without them.
	Actions bool
}

// Poster is the outbound message surface the approval core needs. Handles
// returned by PostCard and PromptReply are platform message identifiers and
// are treated as opaque.
type Poster interface {
	PostCard(ctx context.Context, conversation string, card Card) (string, error)
	EditCard(ctx context.Context, conversation, handle string, card Card) error
	PostMessage(ctx context.Context, conversation, text string) (string, error)
	// PromptReply posts a message that a later reply is expected to
	// reference as its root.
	PromptReply(ctx context.Context, conversation, text string) (string, error)
	// DeleteMessage is best-effort; callers may ignore its error.
	DeleteMessage(ctx context.Context, conversation, handle string) error
}
