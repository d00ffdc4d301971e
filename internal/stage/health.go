package stage

import "strings"

// Health summarizes the readiness of a pipeline stage.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// Summarize reports whether every stage is ready and joins the details of
// those that are not.
func Summarize(checks []Health) (bool, string) {
	ready := true
	var problems []string
	for _, h := range checks {
		if h.Ready {
			continue
		}
		ready = false
		detail := strings.TrimSpace(h.Detail)
		if detail == "" {
			detail = "not ready"
		}
		problems = append(problems, h.Name+": "+detail)
	}
	return ready, strings.Join(problems, "; ")
}
