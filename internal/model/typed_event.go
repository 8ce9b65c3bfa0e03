package model

import (
	"encoding/json"
	"time"
)

// PoolEvent is a journal entry for one state change of a pool.
type PoolEvent struct {
	PoolID    AccountID   `json:"pool_id"`
	Seq       uint64      `json:"seq"`
	EventName string      `json:"event_name"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// PoolEventRecord is the decoded form of a journal line, with the payload
// left raw for callers that switch on EventName.
type PoolEventRecord struct {
	PoolID    AccountID       `json:"pool_id"`
	Seq       uint64          `json:"seq"`
	EventName string          `json:"event_name"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}
