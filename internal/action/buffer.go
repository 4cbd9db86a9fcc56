package action

import "sync"

// MaxContextMessages is the number of recent messages retained per chat for
// journal snapshots.
const MaxContextMessages = 5

// ContextMessage is one message in the conversation snapshot attached to a
// journal entry.
type ContextMessage struct {
	UserID    int64  `json:"user_id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Ts        int64  `json:"ts"`
}

// ContextBuffer stores the last N messages per chat in memory so a journal
// entry can capture what was said around a violation. It is goroutine-safe
// and uses a ring buffer internally.
type ContextBuffer struct {
	mu      sync.RWMutex
	buffers map[int64]*ringBuffer
}

type ringBuffer struct {
	items []ContextMessage
	pos   int
	count int
}

// NewContextBuffer creates a new empty ContextBuffer.
func NewContextBuffer() *ContextBuffer {
	return &ContextBuffer{
		buffers: make(map[int64]*ringBuffer),
	}
}

// Add appends a message to the chat's ring buffer. If the buffer is full,
// the oldest message is overwritten.
func (cb *ContextBuffer) Add(chatID int64, msg ContextMessage) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	rb, ok := cb.buffers[chatID]
	if !ok {
		rb = &ringBuffer{
			items: make([]ContextMessage, MaxContextMessages),
		}
		cb.buffers[chatID] = rb
	}

	rb.items[rb.pos] = msg
	rb.pos = (rb.pos + 1) % MaxContextMessages
	if rb.count < MaxContextMessages {
		rb.count++
	}
}

// Recent returns the last N messages for a chat in chronological order
// (oldest first). Returns an empty slice if the chat has no buffer.
func (cb *ContextBuffer) Recent(chatID int64) []ContextMessage {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	rb, ok := cb.buffers[chatID]
	if !ok {
		return []ContextMessage{}
	}

	result := make([]ContextMessage, rb.count)
	// The oldest message is at position (pos - count) mod MaxContextMessages.
	start := (rb.pos - rb.count + MaxContextMessages) % MaxContextMessages
	for i := 0; i < rb.count; i++ {
		result[i] = rb.items[(start+i)%MaxContextMessages]
	}
	return result
}

// Remove deletes the buffer for a chat.
func (cb *ContextBuffer) Remove(chatID int64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	delete(cb.buffers, chatID)
}
