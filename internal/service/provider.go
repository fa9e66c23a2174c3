package service

import (
	"context"

	"geowatch/internal/models"
)

// Verdict is the normalized outcome of a provider-side charge lookup.
type Verdict int

const (
	VerdictPending Verdict = iota
	VerdictSucceeded
	VerdictFailed
)

// InitiateResult is what a provider returns when a charge is opened.
type InitiateResult struct {
	// ProviderRef is the provider-side identifier for the charge
	// (payment intent id, transaction reference).
	ProviderRef string `json:"provider_ref"`
	// ClientSecretOrURL is handed to the frontend to finish the flow.
	ClientSecretOrURL string `json:"client_secret_or_url"`
}

// WebhookEvent is a provider webhook normalized to the fields the payment
// service needs.
type WebhookEvent struct {
	ID          string
	Type        string
	ProviderRef string
	Succeeded   bool
	Failed      bool
}

// PaymentProvider is the provider-agnostic payment port. Concrete bindings
// differ only in request shape and normalize provider-specific success codes
// to the shared Verdict.
type PaymentProvider interface {
	Initiate(ctx context.Context, payment *models.Payment, billingEmail string) (*InitiateResult, error)
	Verify(ctx context.Context, providerRef string) (Verdict, error)
	// VerifySignature authenticates a raw webhook payload. It runs before
	// any persistence; failures must not leave a stored webhook row.
	VerifySignature(payload []byte, signatureHeader string) error
	ParseWebhook(payload []byte) (*WebhookEvent, error)
}

// ProviderRegistry maps a provider tag to its binding. It is injected into
// the payment service at construction time.
type ProviderRegistry map[models.Provider]PaymentProvider
