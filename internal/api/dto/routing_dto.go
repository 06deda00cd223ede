package dto

type ApplyRoutingRequest struct {
	ContractorIDs []string `json:"contractor_ids" binding:"required"`
}

type OfferDTO struct {
	DispatchID   string `json:"dispatch_id"`
	ContractorID string `json:"contractor_id"`
	Token        string `json:"token"`
	ExpiresAt    string `json:"expires_at"`
}

type ApplyRoutingResponse struct {
	JobID  string     `json:"job_id"`
	Offers []OfferDTO `json:"offers"`
}

type RespondDispatchRequest struct {
	Token                   string `json:"token" binding:"required"`
	Decision                string `json:"decision" binding:"required"`
	EstimatedCompletionDate string `json:"estimated_completion_date"`
}

type RespondDispatchResponse struct {
	DispatchID string `json:"dispatch_id"`
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
}

type AdminRouteRequest struct {
	ContractorID string `json:"contractor_id" binding:"required"`
}
