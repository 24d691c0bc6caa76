/*
Package approval implements the fine-approval request lifecycle: the
in-memory request registry, the voting state machine, the reject-then-reason
handshake and the one-shot reminder.

Every read-modify-write of a single request is serialized by that request's
own lock; requests never contend with each other. The lock covers only the
in-memory transition — chat and ledger calls happen after it is released.
*/
package approval

import (
	"sync"
	"time"

	"github.com/fineflow/internal/parse"
)

// Voter is a snapshot of a voter's identity taken at vote time.
type Voter struct {
	// ID is the voter's handle, matched against the approver allow-list.
	ID string
	// Mention is the display form used in messages and ledger records.
	Mention string
}

// Request is one submitted fine awaiting approval. Its fields are immutable
// after creation; the vote state behind mu only ever moves forward
// (resolved never reverts to false, approvals only grow).
type Request struct {
	handle       string
	conversation string
	fields       parse.Fields
	createdAt    time.Time

	mu              sync.Mutex
	approvals       []Voter // vote order
	voters          map[string]struct{}
	resolved        bool
	rejected        bool
	rejectedBy      Voter
	rejectionReason string
}

func newRequest(handle, conversation string, fields parse.Fields, createdAt time.Time) *Request {
	return &Request{
		handle:       handle,
		conversation: conversation,
		fields:       fields,
		createdAt:    createdAt,
		voters:       make(map[string]struct{}),
	}
}

func (r *Request) Handle() string       { return r.handle }
func (r *Request) Conversation() string { return r.conversation }
func (r *Request) Fields() parse.Fields { return r.fields }
func (r *Request) CreatedAt() time.Time { return r.createdAt }

// Snapshot is a point-in-time copy of a request's mutable state.
type Snapshot struct {
	Approvals       []Voter
	Resolved        bool
	Rejected        bool
	RejectedBy      Voter
	RejectionReason string
}

// Snapshot returns a consistent copy of the vote state.
func (r *Request) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Request) snapshotLocked() Snapshot {
	approvals := make([]Voter, len(r.approvals))
	copy(approvals, r.approvals)
	return Snapshot{
		Approvals:       approvals,
		Resolved:        r.resolved,
		Rejected:        r.rejected,
		RejectedBy:      r.rejectedBy,
		RejectionReason: r.rejectionReason,
	}
}

// setRejectionReason records the reason collected by the handshake. It
// returns the updated snapshot.
func (r *Request) setRejectionReason(reason string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejectionReason = reason
	return r.snapshotLocked()
}

// ApprovalMentions returns the mention names of the approvals in vote order.
func (s Snapshot) ApprovalMentions() []string {
	mentions := make([]string, 0, len(s.Approvals))
	for _, v := range s.Approvals {
		mentions = append(mentions, v.Mention)
	}
	return mentions
}
