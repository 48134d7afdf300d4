package audit

import "time"

// TimelineFilters narrows the decision timeline query.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	UserID   int64
	TenantID int64
	Pattern  string
	Source   string
	Granted  *bool
	Page     int
	PageSize int
}

// TimelineRow is one persisted decision.
type TimelineRow struct {
	ID             int64     `json:"id"`
	OccurredAt     time.Time `json:"occurred_at"`
	UserID         int64     `json:"user_id"`
	Pattern        string    `json:"pattern"`
	Resource       string    `json:"resource"`
	Action         string    `json:"action"`
	Granted        bool      `json:"granted"`
	Source         string    `json:"source"`
	MatchedPattern string    `json:"matched_pattern,omitempty"`
	TenantID       int64     `json:"tenant_id,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	RequestID      string    `json:"request_id,omitempty"`
	IP             string    `json:"ip,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
}

// PagingInfo carries simple pagination metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result bundles timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}
