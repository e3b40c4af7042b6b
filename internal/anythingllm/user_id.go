package anythingllm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UserID is the server-assigned account identifier. The admin API
// hands out numeric ids today, but nothing here depends on that:
// locally the id is an opaque string, and digit-only ids marshal back
// as bare JSON numbers so request payloads match what the server
// issued.
type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		*id = ""
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id must be a number or string: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

func (id UserID) MarshalJSON() ([]byte, error) {
	s := string(id)
	if isAllDigits(s) {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
