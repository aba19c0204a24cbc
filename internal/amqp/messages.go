package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Ledger change operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// LedgerChangedMessage announces a committed write. It carries no record
// data: receivers re-read the ledger.
type LedgerChangedMessage struct {
	ID        string    `json:"id"`
	Op        string    `json:"op"`
	Version   uint64    `json:"version"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerChangedMessage(id, op string, version uint64, origin string) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		ID:        id,
		Op:        op,
		Version:   version,
		Origin:    origin,
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON decodes and checks a message body.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Op {
	case OpCreate, OpUpdate, OpDelete:
	default:
		return nil, errors.New("unknown ledger operation " + msg.Op)
	}
	return &msg, nil
}
