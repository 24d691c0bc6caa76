package approval

import "sync"

// pendingKey identifies an in-flight rejection waiting for its reason.
type pendingKey struct {
	conversation string
	voter        string
}

// pendingReply points from the correlation key to the prompt that asked for
// the reason and the request it belongs to.
type pendingReply struct {
	prompt  string
	request string
}

// handshakeTable holds one entry per rejection awaiting a reason. Entries
// have no expiry: if the rejecting voter never replies, the entry stays
// until the process exits.
type handshakeTable struct {
	mu      sync.Mutex
	entries map[pendingKey]pendingReply
}

func newHandshakeTable() *handshakeTable {
	return &handshakeTable{entries: make(map[pendingKey]pendingReply)}
}

func (t *handshakeTable) put(key pendingKey, entry pendingReply) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = entry
}

// consume removes and returns the entry for key, but only if the reply
// references the stored prompt. The removal is atomic with the match, so a
// redelivered reply finds nothing the second time.
func (t *handshakeTable) consume(key pendingKey, repliedTo string) (pendingReply, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok || entry.prompt != repliedTo {
		return pendingReply{}, false
	}
	delete(t.entries, key)
	return entry, true
}

func (t *handshakeTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
