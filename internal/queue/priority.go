package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Priority orders pending jobs; higher values dispatch first.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 10
)

// ParsePriority accepts a level name (low, normal, high) or an integer 0-10.
// Blank input means normal.
func ParsePriority(value string) (Priority, error) {
	switch v := strings.ToLower(strings.TrimSpace(value)); v {
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	default:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("priority %q: want low, normal, high, or 0-10", value)
		}
		if n < int(PriorityLow) || n > int(PriorityHigh) {
			return 0, fmt.Errorf("priority %d out of range 0-10", n)
		}
		return Priority(n), nil
	}
}

// String returns the level name for the named levels and the number otherwise.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return strconv.Itoa(int(p))
	}
}

// UnmarshalJSON accepts either a JSON number or a level name string.
func (p *Priority) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = PriorityNormal
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParsePriority(s)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("priority: %w", err)
	}
	*p = Priority(n)
	return nil
}
