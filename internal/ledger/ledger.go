/*
Package ledger appends decided fines to an external append-only record
store. Records are grouped into year-month partitions derived from the
decision time; a partition is created on first use.
*/
package ledger

import (
	"context"
	"strings"
	"time"
)

// StatusApproved is the status label written for every record; rejections
// never reach the ledger.
const StatusApproved = "approved"

// Record is one decided fine. The column set is fixed.
type Record struct {
	Ticket        string
	ViolationType string
	Reason        string
	Amount        string
	Operator      string
	Status        string
	Approvers     []string // mention names, in vote order
	DecidedAt     time.Time
}

// Ledger is the append operation the approval core depends on. Append is
// at-most-once from the caller's point of view: a failed append is reported,
// never retried.
type Ledger interface {
	Append(ctx context.Context, partition string, rec Record) error
}

// PartitionKey derives the year-month partition for a decision time,
// evaluated in the configured ledger timezone.
func PartitionKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("200601")
}

// JoinApprovers renders the ordered approver list as a single cell value.
func JoinApprovers(approvers []string) string {
	return strings.Join(approvers, ", ")
}
