package dto

type PaymentIntentResponse struct {
	JobID            string `json:"job_id"`
	ProviderIntentID string `json:"provider_intent_id"`
	ClientSecret     string `json:"client_secret"`
	AmountCents      int64  `json:"amount_cents"`
}

type ConfirmPaymentRequest struct {
	JobID            string `json:"job_id" binding:"required"`
	ProviderIntentID string `json:"provider_intent_id" binding:"required"`
}

type ConfirmPaymentResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount_cents"`
}
