package models

// TimeWindow is an inclusive [Start, End] range in seconds. An inverted
// window is kept as given and matches nothing.
type TimeWindow struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (w TimeWindow) Contains(ts float64) bool {
	return w.Start <= ts && ts <= w.End
}

// ParsedQuery is the structured predicate extracted from a free-text query.
type ParsedQuery struct {
	Objects  []string    `json:"objects"`
	Colors   []string    `json:"colors"`
	Window   *TimeWindow `json:"time_range,omitempty"`
	Location string      `json:"location,omitempty"`
	Action   string      `json:"action,omitempty"`
	Raw      string      `json:"original_query"`
	Source   string      `json:"source"`
}
