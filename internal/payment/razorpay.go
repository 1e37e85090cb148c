package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultBaseURL = "https://api.razorpay.com"

var ErrNotConfigured = errors.New("payment gateway not configured")

// Intent is a gateway-side order the client pays against.
type Intent struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	Status      string `json:"status"`
}

// Razorpay creates orders through the REST API with basic auth.
type Razorpay struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	HTTP      *http.Client
}

func NewRazorpay(keyID, keySecret, baseURL string) *Razorpay {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Razorpay{
		KeyID:     keyID,
		KeySecret: keySecret,
		BaseURL:   baseURL,
		HTTP:      &http.Client{Timeout: 10 * time.Second},
	}
}

type createOrderReq struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PaymentCapture int    `json:"payment_capture"`
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (r *Razorpay) CreateIntent(ctx context.Context, amountMinor int64, currency, receipt string) (Intent, error) {
	if r.KeyID == "" || r.KeySecret == "" {
		return Intent{}, ErrNotConfigured
	}
	body, err := json.Marshal(createOrderReq{Amount: amountMinor, Currency: currency, Receipt: receipt, PaymentCapture: 1})
	if err != nil {
		return Intent{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return Intent{}, err
	}
	req.SetBasicAuth(r.KeyID, r.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTP.Do(req)
	if err != nil {
		return Intent{}, fmt.Errorf("create gateway order: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Intent{}, err
	}
	if resp.StatusCode/100 != 2 {
		var ae apiError
		_ = json.Unmarshal(raw, &ae)
		return Intent{}, fmt.Errorf("create gateway order: status %d: %s %s", resp.StatusCode, ae.Error.Code, ae.Error.Description)
	}
	var in Intent
	if err := json.Unmarshal(raw, &in); err != nil {
		return Intent{}, fmt.Errorf("decode gateway order: %w", err)
	}
	return in, nil
}
