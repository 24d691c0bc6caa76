/*
Package parse extracts the structured fields of a fine submission from
free-form message text.

A submission is a sequence of "key: value" lines. Ticket, violation and
reason are mandatory; amount and operator are optional. Parsing has no side
effects, so the state machine can be tested without it.
*/
package parse

import (
	"fmt"
	"strings"
)

// Fields holds the parsed submission fields. All values are kept as the
// submitter wrote them; amount in particular is free-form text, not a number.
type Fields struct {
	Ticket        string
	ViolationType string
	Reason        string
	Amount        string
	Operator      string
}

// ErrMissingField reports a mandatory field absent from the submission.
type ErrMissingField struct {
	Field string
}

func (e *ErrMissingField) Error() string {
	return fmt.Sprintf("submission is missing mandatory field %q", e.Field)
}

// Usage is shown to the submitter when parsing fails.
const Usage = "Expected format:\n" +
	"```\n" +
	"ticket: OPS-1234\n" +
	"violation: <violation type>\n" +
	"reason: <why the fine is due>\n" +
	"amount: 200 (optional)\n" +
	"operator: <handle> (optional)\n" +
	"```"

// keyAliases maps accepted line keys onto canonical field names.
var keyAliases = map[string]string{
	"ticket":    "ticket",
	"violation": "violation",
	"type":      "violation",
	"reason":    "reason",
	"amount":    "amount",
	"fine":      "amount",
	"operator":  "operator",
}

// Parse extracts submission fields from text. The three mandatory fields
// must each appear on their own "key: value" line; later duplicates of a key
// are ignored.
func Parse(text string) (Fields, error) {
	values := make(map[string]string, 5)

	for _, line := range strings.Split(text, "\n") {
		key, value, ok := splitLine(line)
		if !ok {
			continue
		}
		canonical, known := keyAliases[key]
		if !known {
			continue
		}
		if _, seen := values[canonical]; seen {
			continue
		}
		values[canonical] = value
	}

	for _, mandatory := range []string{"ticket", "violation", "reason"} {
		if values[mandatory] == "" {
			return Fields{}, &ErrMissingField{Field: mandatory}
		}
	}

	return Fields{
		Ticket:        values["ticket"],
		ViolationType: values["violation"],
		Reason:        values["reason"],
		Amount:        values["amount"],
		Operator:      values["operator"],
	}, nil
}

// splitLine splits one "key: value" line. Both halves are trimmed and the
// key is lowercased. Full-width colons are accepted since submissions often
// come from CJK input methods.
func splitLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", "", false
	}

	idx := strings.IndexAny(line, ":：")
	if idx < 0 {
		return "", "", false
	}

	key = strings.ToLower(strings.TrimSpace(line[:idx]))
	// The full-width colon is three bytes wide.
	rest := line[idx:]
	if strings.HasPrefix(rest, "：") {
		value = strings.TrimSpace(rest[len("："):])
	} else {
		value = strings.TrimSpace(rest[1:])
	}
	if key == "" {
		return "", "", false
	}
	return key, value, true
}
