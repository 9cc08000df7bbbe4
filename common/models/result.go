package models

import "encoding/json"

// Result is what a successful render produces
type Result struct {
	ObjectName  string           `json:"object_name"`
	URL         string           `json:"url,omitempty"`
	ContentType string           `json:"content_type"`
	Size        int64            `json:"size"`
	DurationMs  int64            `json:"duration_ms"`
	Timings     map[string]int64 `json:"timings,omitempty"`
}

// to json
func (r Result) ToJson() (json.RawMessage, error) {
	return json.Marshal(r)
}
