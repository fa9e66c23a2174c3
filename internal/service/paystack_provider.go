package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"geowatch/internal/apperr"
	"geowatch/internal/models"
)

// PaystackProvider drives transactions through Paystack's REST API.
type PaystackProvider struct {
	secretKey   string
	callbackURL string
	baseURL     string
	client      *http.Client
}

// NewPaystackProvider creates a Paystack binding
func NewPaystackProvider(secretKey, callbackURL string, timeout time.Duration) *PaystackProvider {
	return &PaystackProvider{
		secretKey:   secretKey,
		callbackURL: callbackURL,
		baseURL:     "https://api.paystack.co",
		client:      &http.Client{Timeout: timeout},
	}
}

type paystackInitResponse struct {
	Status bool `json:"status"`
	Data   struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// Initiate opens a transaction; the payment ID doubles as the reference
func (pp *PaystackProvider) Initiate(ctx context.Context, payment *models.Payment, billingEmail string) (*InitiateResult, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"email":        billingEmail,
		"amount":       payment.AmountMinorUnits(),
		"currency":     payment.Currency,
		"reference":    payment.ID.String(),
		"callback_url": pp.callbackURL,
		"metadata": map[string]string{
			"payment_id": payment.ID.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		pp.baseURL+"/transaction/initialize", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+pp.secretKey)
	req.Header.Set("Content-Type", "application/json")

	var result paystackInitResponse
	if err := pp.do(req, &result); err != nil {
		return nil, err
	}
	if !result.Status {
		return nil, fmt.Errorf("paystack initialize rejected: %w", apperr.ErrProvider)
	}

	return &InitiateResult{
		ProviderRef:       result.Data.Reference,
		ClientSecretOrURL: result.Data.AuthorizationURL,
	}, nil
}

type paystackVerifyResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
	} `json:"data"`
}

// Verify looks up a transaction and normalizes its status
func (pp *PaystackProvider) Verify(ctx context.Context, providerRef string) (Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		pp.baseURL+"/transaction/verify/"+providerRef, nil)
	if err != nil {
		return VerdictPending, err
	}
	req.Header.Set("Authorization", "Bearer "+pp.secretKey)

	var result paystackVerifyResponse
	if err := pp.do(req, &result); err != nil {
		return VerdictPending, err
	}

	switch result.Data.Status {
	case "success":
		return VerdictSucceeded, nil
	case "failed", "abandoned":
		return VerdictFailed, nil
	default:
		return VerdictPending, nil
	}
}

// VerifySignature checks the x-paystack-signature header: HMAC-SHA512 of
// the raw body with the secret key.
func (pp *PaystackProvider) VerifySignature(payload []byte, signatureHeader string) error {
	if signatureHeader == "" {
		return fmt.Errorf("missing paystack signature: %w", apperr.ErrUnauthenticated)
	}
	mac := hmac.New(sha512.New, []byte(pp.secretKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signatureHeader)) {
		return fmt.Errorf("paystack signature mismatch: %w", apperr.ErrUnauthenticated)
	}
	return nil
}

type paystackWebhook struct {
	ID    int64  `json:"id"`
	Event string `json:"event"`
	Data  struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
	} `json:"data"`
}

// ParseWebhook normalizes a Paystack event envelope
func (pp *PaystackProvider) ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var event paystackWebhook
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse paystack webhook: %w", err)
	}

	webhookID := fmt.Sprintf("%d", event.ID)
	if event.ID == 0 {
		if event.Data.ID != 0 {
			webhookID = fmt.Sprintf("%d", event.Data.ID)
		} else {
			webhookID = event.Event + ":" + event.Data.Reference
		}
	}

	return &WebhookEvent{
		ID:          webhookID,
		Type:        event.Event,
		ProviderRef: event.Data.Reference,
		Succeeded:   event.Event == "charge.success",
		Failed:      event.Event == "charge.failed",
	}, nil
}

func (pp *PaystackProvider) do(req *http.Request, out interface{}) error {
	resp, err := pp.client.Do(req)
	if err != nil {
		return fmt.Errorf("paystack request failed: %w: %v", apperr.ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("paystack response read failed: %w: %v", apperr.ErrProvider, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("paystack returned %d: %w", resp.StatusCode, apperr.ErrProvider)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("paystack response decode failed: %w: %v", apperr.ErrProvider, err)
	}
	return nil
}
