package queue_test

import (
	"encoding/json"
	"testing"

	"podforge/internal/queue"
)

func TestParsePriority(t *testing.T) {
	cases := []struct {
		in      string
		want    queue.Priority
		wantErr bool
	}{
		{"", queue.PriorityNormal, false},
		{"high", queue.PriorityHigh, false},
		{"LOW", queue.PriorityLow, false},
		{"7", queue.Priority(7), false},
		{"11", 0, true},
		{"urgent", 0, true},
	}
	for _, tc := range cases {
		got, err := queue.ParsePriority(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParsePriority(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParsePriority(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}

func TestPriorityUnmarshalAcceptsNameOrNumber(t *testing.T) {
	var in queue.Input
	if err := json.Unmarshal([]byte(`{"priority":"high"}`), &in); err != nil {
		t.Fatal(err)
	}
	if in.Priority != queue.PriorityHigh {
		t.Fatalf("expected high, got %v", in.Priority)
	}
	if err := json.Unmarshal([]byte(`{"priority":3}`), &in); err != nil {
		t.Fatal(err)
	}
	if in.Priority != 3 {
		t.Fatalf("expected 3, got %v", in.Priority)
	}
	if err := json.Unmarshal([]byte(`{"priority":"soon"}`), &in); err == nil {
		t.Fatal("expected error for unknown name")
	}
}

func TestPriorityString(t *testing.T) {
	if queue.PriorityHigh.String() != "high" || queue.Priority(3).String() != "3" {
		t.Fatalf("unexpected strings %q %q", queue.PriorityHigh.String(), queue.Priority(3).String())
	}
}
