package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// decodeJSON unmarshals a model reply into target. Replies wrapped in a
// markdown fence or surrounded by chatter are reduced to their outermost
// JSON object before a second attempt.
func decodeJSON(reply string, target any) error {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return errors.New("empty payload")
	}
	err := json.Unmarshal([]byte(reply), target)
	if err == nil {
		return nil
	}
	object, ok := outermostObject(reply)
	if !ok || object == reply {
		return fmt.Errorf("%w (payload snippet: %s)", err, snippet(reply))
	}
	if err := json.Unmarshal([]byte(object), target); err != nil {
		return fmt.Errorf("%w (extracted object: %s)", err, snippet(object))
	}
	return nil
}

func outermostObject(reply string) (string, bool) {
	body := reply
	if rest, found := strings.CutPrefix(body, "```"); found {
		rest = strings.TrimLeft(rest, " \t\r\n")
		if len(rest) >= 4 && strings.EqualFold(rest[:4], "json") {
			rest = rest[4:]
		}
		if idx := strings.LastIndex(rest, "```"); idx >= 0 {
			rest = rest[:idx]
		}
		body = strings.TrimSpace(rest)
	}
	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return body[start : end+1], true
}

func snippet(s string) string {
	const limit = 160
	s = strings.Join(strings.Fields(s), " ")
	if runes := []rune(s); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return s
}
