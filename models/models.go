package models

import (
	"fmt"
	"net/url"
	"strings"
)

// Record is the persisted unit of data: one form submission plus the
// timestamp the relay assigned at receipt. Records are never updated or
// deleted once stored.
type Record struct {
	MessageID string `json:"message_id" bson:"message_id"`
	Username  string `json:"username" bson:"username"`
	Message   string `json:"message" bson:"message"`
	Timestamp string `json:"timestamp" bson:"timestamp"`
}

// TimestampLayout matches the document format of the original deployment.
// It sorts lexicographically, which the store relies on.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// EncodeForm serializes a record as a URL-encoded datagram payload. The
// timestamp is never sent; the relay assigns it at receipt.
func EncodeForm(r Record) []byte {
	v := url.Values{}
	if r.MessageID != "" {
		v.Set("message_id", r.MessageID)
	}
	v.Set("username", r.Username)
	v.Set("message", r.Message)
	return []byte(v.Encode())
}

// DecodeForm parses a URL-encoded payload into a record, trimming
// surrounding whitespace from username and message.
func DecodeForm(data []byte) (Record, error) {
	v, err := url.ParseQuery(string(data))
	if err != nil {
		return Record{}, fmt.Errorf("parse form payload: %w", err)
	}
	return Record{
		MessageID: v.Get("message_id"),
		Username:  strings.TrimSpace(v.Get("username")),
		Message:   strings.TrimSpace(v.Get("message")),
	}, nil
}

// Validate reports whether the record may be persisted. maxLen <= 0 disables
// the length cap.
func (r Record) Validate(maxLen int) error {
	if strings.TrimSpace(r.Username) == "" {
		return fmt.Errorf("empty username")
	}
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("empty message")
	}
	if maxLen > 0 && len(r.Message) > maxLen {
		return fmt.Errorf("message too long: len=%d max=%d", len(r.Message), maxLen)
	}
	return nil
}
