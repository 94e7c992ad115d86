package elim

import "sync"

// Confirmation is the asynchronous acknowledgment for one remediation
// intent.
type Confirmation struct {
	IntentID string `json:"intentId"`
	Success  bool   `json:"success"`
}

// Inbox is the single-consumer mailbox confirmations are delivered into.
// Producers are remediation tasks on their own goroutines; the simulation
// loop drains it at the start of each tick.
type Inbox struct {
	mu    sync.Mutex
	queue []Confirmation
}

// NewInbox constructs an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{}
}

// Push appends a confirmation. Never blocks.
func (in *Inbox) Push(c Confirmation) {
	if in == nil {
		return
	}
	in.mu.Lock()
	in.queue = append(in.queue, c)
	in.mu.Unlock()
}

// Drain returns all queued confirmations in arrival order and clears the
// inbox.
func (in *Inbox) Drain() []Confirmation {
	if in == nil {
		return nil
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.queue) == 0 {
		return nil
	}
	drained := in.queue
	in.queue = nil
	return drained
}

// Len reports the queued confirmation count.
func (in *Inbox) Len() int {
	if in == nil {
		return 0
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.queue)
}
