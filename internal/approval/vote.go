package approval

// VoteKind is the direction of a vote.
type VoteKind int

const (
	VoteApprove VoteKind = iota
	VoteReject
)

// Outcome classifies what a vote event did to a request.
type Outcome int

const (
	// OutcomeIgnored: unknown or already-resolved request. Expected under
	// at-least-once delivery, so it carries no user-visible error.
	OutcomeIgnored Outcome = iota
	// OutcomeUnauthorized: voter is not on the allow-list.
	OutcomeUnauthorized
	// OutcomeAlreadyVoted: voter already cast a vote of either kind.
	OutcomeAlreadyVoted
	// OutcomeApproved: approval recorded, quorum not yet reached.
	OutcomeApproved
	// OutcomeQuorum: this approval reached quorum and resolved the request.
	// Emitted exactly once per request.
	OutcomeQuorum
	// OutcomeRejected: this reject vote resolved the request. Emitted at
	// most once per request.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeAlreadyVoted:
		return "already_voted"
	case OutcomeApproved:
		return "approved"
	case OutcomeQuorum:
		return "quorum"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// VoteResult is the outcome of applying one vote, with the state snapshot
// taken inside the same critical section.
type VoteResult struct {
	Outcome   Outcome
	Approvals int
	Required  int
	Snapshot  Snapshot
}

// applyVote runs the vote state machine as one atomic unit under the
// request's lock:
//
//  1. resolved request: ignored (redelivered votes are expected)
//  2. allow-list check
//  3. duplicate-voter check, regardless of vote kind
//  4. record the voter
//  5. approve: append in vote order, resolve on quorum
//  6. reject: resolve immediately
func (r *Request) applyVote(voter Voter, kind VoteKind, policy Policy) VoteResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := func(o Outcome) VoteResult {
		return VoteResult{
			Outcome:   o,
			Approvals: len(r.approvals),
			Required:  policy.Required,
			Snapshot:  r.snapshotLocked(),
		}
	}

	if r.resolved {
		return result(OutcomeIgnored)
	}
	if !policy.Authorized(voter.ID) {
		return result(OutcomeUnauthorized)
	}
	if _, voted := r.voters[voter.ID]; voted {
		return result(OutcomeAlreadyVoted)
	}

	r.voters[voter.ID] = struct{}{}

	if kind == VoteReject {
		r.resolved = true
		r.rejected = true
		r.rejectedBy = voter
		return result(OutcomeRejected)
	}

	r.approvals = append(r.approvals, voter)
	if len(r.approvals) >= policy.Required {
		r.resolved = true
		return result(OutcomeQuorum)
	}
	return result(OutcomeApproved)
}
