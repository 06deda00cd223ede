package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Intent is the provider-side hold on the poster's funds.
type Intent struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	AmountCents  int64  `json:"amount_cents"`
}

// CreateIntentParams carries everything the provider needs. The idempotency
// key is deterministic per (job, amount): retrying the same charge returns
// the same intent instead of creating a second one.
type CreateIntentParams struct {
	AmountCents    int64
	Currency       string
	IdempotencyKey string
	JobID          string
}

// Provider is the escrow/payment provider surface. CancelIntent is called
// best-effort: callers log its failure and continue, so implementations must
// be safe to retry.
type Provider interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	CancelIntent(ctx context.Context, intentID string) error
}

// ProviderError wraps a failed provider call with the operation that failed.
// The payment record is left in its prior consistent state when one of these
// surfaces.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// HTTPProvider talks to the escrow gateway over REST.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPProvider creates a provider client with the given request timeout.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type createIntentRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
}

// CreateIntent posts a new intent. The idempotency key travels as a header,
// so the gateway collapses duplicate creates for the same (job, amount).
func (p *HTTPProvider) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	body, err := json.Marshal(createIntentRequest{
		AmountCents: params.AmountCents,
		Currency:    params.Currency,
		Reference:   params.JobID,
	})
	if err != nil {
		return nil, &ProviderError{Op: "create_intent", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/intents", bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Op: "create_intent", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Idempotency-Key", params.IdempotencyKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Op: "create_intent", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ProviderError{
			Op:  "create_intent",
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, payload),
		}
	}

	var intent Intent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, &ProviderError{Op: "create_intent", Err: err}
	}

	p.logger.Debug("Payment intent created at provider",
		slog.String("intent_id", intent.IntentID),
		slog.Int64("amount_cents", intent.AmountCents),
	)

	return &intent, nil
}

// CancelIntent voids a provider intent. An already-canceled intent is not an
// error.
func (p *HTTPProvider) CancelIntent(ctx context.Context, intentID string) error {
	url := fmt.Sprintf("%s/v1/intents/%s/cancel", p.baseURL, intentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return &ProviderError{Op: "cancel_intent", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return &ProviderError{Op: "cancel_intent", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusConflict:
		// Conflict means the intent is already canceled or settled; the
		// orphaned intent is acceptable, a double charge is not.
		return nil
	default:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ProviderError{
			Op:  "cancel_intent",
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, payload),
		}
	}
}
