package dto

type CreateJobRequest struct {
	Title               string `json:"title" binding:"required"`
	Description         string `json:"description"`
	LaborTotalCents     int64  `json:"labor_total_cents"`
	MaterialsTotalCents int64  `json:"materials_total_cents"`
	RoutingDueAt        string `json:"routing_due_at"`
}

type UpdateTotalsRequest struct {
	LaborTotalCents     int64 `json:"labor_total_cents"`
	MaterialsTotalCents int64 `json:"materials_total_cents"`
}

type JobResponse struct {
	JobID                 string  `json:"job_id"`
	JobPosterUserID       string  `json:"job_poster_user_id"`
	Title                 string  `json:"title"`
	Description           string  `json:"description"`
	Status                string  `json:"status"`
	RoutingStatus         string  `json:"routing_status"`
	Archived              bool    `json:"archived"`
	PostedAt              *string `json:"posted_at,omitempty"`
	RoutingDueAt          *string `json:"routing_due_at,omitempty"`
	RoutedAt              *string `json:"routed_at,omitempty"`
	ClaimedByUserID       *string `json:"claimed_by_user_id,omitempty"`
	ContractorUserID      *string `json:"contractor_user_id,omitempty"`
	LaborTotalCents       int64   `json:"labor_total_cents"`
	MaterialsTotalCents   int64   `json:"materials_total_cents"`
	RouterEarningsCents   int64   `json:"router_earnings_cents"`
	ContractorPayoutCents int64   `json:"contractor_payout_cents"`
	BrokerFeeCents        int64   `json:"broker_fee_cents"`
	Funded                bool    `json:"funded"`
	CreatedAt             string  `json:"created_at"`
	UpdatedAt             string  `json:"updated_at"`
}
