package messaging

import (
	"context"
	"sync"

	"github.com/agentgate/mcp-gateway-go/mcp"
)

const defaultMailboxCap = 256

// MemorySink buffers delivered messages per recipient. Messages beyond the
// mailbox capacity evict the oldest entries, so a recipient that never drains
// cannot pin unbounded memory.
type MemorySink struct {
	mu         sync.Mutex
	mailboxes  map[string][]mcp.BatchMessage
	mailboxCap int
}

// NewMemorySink builds an empty sink. A non-positive mailboxCap uses the
// package default.
func NewMemorySink(mailboxCap int) *MemorySink {
	if mailboxCap <= 0 {
		mailboxCap = defaultMailboxCap
	}
	return &MemorySink{
		mailboxes:  make(map[string][]mcp.BatchMessage),
		mailboxCap: mailboxCap,
	}
}

// SendBatch appends every message to its recipient's mailbox. Messages with
// no recipient land in the empty-named broadcast mailbox.
func (s *MemorySink) SendBatch(ctx context.Context, msgs []mcp.BatchMessage) (*mcp.SendBatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range msgs {
		box := append(s.mailboxes[m.Recipient], m)
		if over := len(box) - s.mailboxCap; over > 0 {
			box = box[over:]
		}
		s.mailboxes[m.Recipient] = box
	}
	return &mcp.SendBatchResult{Accepted: len(msgs)}, nil
}

// Drain removes and returns the recipient's pending messages in delivery
// order.
func (s *MemorySink) Drain(recipient string) []mcp.BatchMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	box := s.mailboxes[recipient]
	delete(s.mailboxes, recipient)
	return box
}

// Pending returns the number of undrained messages for the recipient.
func (s *MemorySink) Pending(recipient string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mailboxes[recipient])
}
