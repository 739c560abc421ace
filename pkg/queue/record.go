package queue

import (
	"time"

	"github.com/google/uuid"
)

// Receipt represents a unique receipt for a record, so that it can be tracked
// for committing purposes.
type Receipt string

func (r Receipt) String() string {
	return string(r)
}

// Record is a message taken from the queue.
type Record struct {
	ID         uuid.UUID
	MessageID  string
	Receipt    Receipt
	Body       []byte
	ReceivedAt time.Time
}

// NewRecord creates a record for a message received now.
func NewRecord(messageID string, receipt Receipt, body []byte) Record {
	return Record{
		ID:         uuid.New(),
		MessageID:  messageID,
		Receipt:    receipt,
		Body:       body,
		ReceivedAt: time.Now(),
	}
}
