package dto

type ListEventsRequest struct {
	Type      string `form:"type"`
	JobID     string `form:"job_id"`
	Unhandled bool   `form:"unhandled"`
	PageSize  int    `form:"page_size"`
	Cursor    string `form:"cursor"`
}

type EventDTO struct {
	EventID         string  `json:"event_id"`
	JobID           string  `json:"job_id"`
	Type            string  `json:"type"`
	Role            string  `json:"role"`
	UserID          *string `json:"user_id,omitempty"`
	CreatedAt       string  `json:"created_at"`
	HandledAt       *string `json:"handled_at,omitempty"`
	JobTitle        string  `json:"job_title"`
	JobStatus       string  `json:"job_status"`
	JobPosterUserID string  `json:"job_poster_user_id"`
}

type ListEventsResponse struct {
	Events     []EventDTO `json:"events"`
	NextCursor string     `json:"next_cursor,omitempty"`
}
