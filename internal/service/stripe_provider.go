package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"geowatch/internal/apperr"
	"geowatch/internal/models"
)

// StripeProvider drives payment intents through Stripe's REST API.
type StripeProvider struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	client        *http.Client
}

// NewStripeProvider creates a Stripe binding
func NewStripeProvider(secretKey, webhookSecret string, timeout time.Duration) *StripeProvider {
	return &StripeProvider{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       "https://api.stripe.com/v1",
		client:        &http.Client{Timeout: timeout},
	}
}

type stripeIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

// Initiate creates a payment intent for the payment's amount
func (sp *StripeProvider) Initiate(ctx context.Context, payment *models.Payment, billingEmail string) (*InitiateResult, error) {
	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", payment.AmountMinorUnits()))
	form.Set("currency", strings.ToLower(payment.Currency))
	form.Set("metadata[payment_id]", payment.ID.String())
	form.Set("receipt_email", billingEmail)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		sp.baseURL+"/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+sp.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var intent stripeIntent
	if err := sp.do(req, &intent); err != nil {
		return nil, err
	}

	return &InitiateResult{
		ProviderRef:       intent.ID,
		ClientSecretOrURL: intent.ClientSecret,
	}, nil
}

// Verify retrieves the intent and normalizes its status
func (sp *StripeProvider) Verify(ctx context.Context, providerRef string) (Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		sp.baseURL+"/payment_intents/"+providerRef, nil)
	if err != nil {
		return VerdictPending, err
	}
	req.Header.Set("Authorization", "Bearer "+sp.secretKey)

	var intent stripeIntent
	if err := sp.do(req, &intent); err != nil {
		return VerdictPending, err
	}

	switch intent.Status {
	case "succeeded":
		return VerdictSucceeded, nil
	case "canceled":
		return VerdictFailed, nil
	default:
		return VerdictPending, nil
	}
}

// VerifySignature checks the Stripe-Signature header: HMAC-SHA256 over
// "<t>.<payload>" with the webhook secret, compared against the v1 value.
func (sp *StripeProvider) VerifySignature(payload []byte, signatureHeader string) error {
	var timestamp, v1 string
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			v1 = kv[1]
		}
	}
	if timestamp == "" || v1 == "" {
		return fmt.Errorf("malformed stripe signature header: %w", apperr.ErrUnauthenticated)
	}

	mac := hmac.New(sha256.New, []byte(sp.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(v1)) {
		return fmt.Errorf("stripe signature mismatch: %w", apperr.ErrUnauthenticated)
	}
	return nil
}

type stripeWebhook struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// ParseWebhook normalizes a Stripe event envelope
func (sp *StripeProvider) ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var event stripeWebhook
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse stripe webhook: %w", err)
	}
	return &WebhookEvent{
		ID:          event.ID,
		Type:        event.Type,
		ProviderRef: event.Data.Object.ID,
		Succeeded:   event.Type == "payment_intent.succeeded",
		Failed:      event.Type == "payment_intent.payment_failed",
	}, nil
}

func (sp *StripeProvider) do(req *http.Request, out interface{}) error {
	resp, err := sp.client.Do(req)
	if err != nil {
		return fmt.Errorf("stripe request failed: %w: %v", apperr.ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("stripe response read failed: %w: %v", apperr.ErrProvider, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("stripe returned %d: %w", resp.StatusCode, apperr.ErrProvider)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("stripe response decode failed: %w: %v", apperr.ErrProvider, err)
	}
	return nil
}
