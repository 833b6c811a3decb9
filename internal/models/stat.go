package models

// StatusCounts holds notification counts per terminal status.
type StatusCounts struct {
	Total     int `json:"total" db:"total"`
	Sent      int `json:"sent" db:"sent"`
	Partial   int `json:"partial" db:"partial"`
	Failed    int `json:"failed" db:"failed"`
	Scheduled int `json:"scheduled" db:"scheduled"`
	Pending   int `json:"pending" db:"pending"`
}

// TypeStat is the per-type breakdown row of an aggregate stats query.
type TypeStat struct {
	Type string `json:"type" db:"type"`
	StatusCounts
}

// NotificationStats is the aggregated view over a filtered notification set,
// optionally broken down by notification type.
type NotificationStats struct {
	StatusCounts
	ByType []TypeStat `json:"by_type,omitempty"`
}
