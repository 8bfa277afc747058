package zarinpal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	// CodeSuccess is returned for a confirmed payment.
	CodeSuccess = 100
	// CodeAlreadyVerified is returned when the authority was verified
	// before; the gateway treats it as success and so do we.
	CodeAlreadyVerified = 101
)

// Client talks to the Zarinpal v4 payment REST API.
type Client interface {
	// RequestPayment opens a payment attempt and returns the authority token
	// plus the URL the buyer must be redirected to.
	RequestPayment(ctx context.Context, req *PaymentRequest) (*PaymentRequestResult, error)
	// VerifyPayment confirms a payment attempt. The amount must equal the
	// amount sent at request time.
	VerifyPayment(ctx context.Context, req *VerifyRequest) (*VerifyResult, error)
}

type PaymentRequest struct {
	Amount      int64
	CallbackURL string
	Description string
	Email       string
	Mobile      string
}

type PaymentRequestResult struct {
	Code        int
	Authority   string
	RedirectURL string
}

type VerifyRequest struct {
	Amount    int64
	Authority string
}

type VerifyResult struct {
	Code        int
	ReferenceID string
}

// Success reports whether the verify outcome means the payment is confirmed.
func (r *VerifyResult) Success() bool {
	return r != nil && (r.Code == CodeSuccess || r.Code == CodeAlreadyVerified)
}

type clientImpl struct {
	httpClient *http.Client
	baseURL    string
	payURL     string
	merchantID string
}

type Options struct {
	BaseURL    string
	PayURL     string
	MerchantID string
	Timeout    time.Duration
}

func NewClient(opts Options) Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &clientImpl{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    opts.BaseURL,
		payURL:     opts.PayURL,
		merchantID: opts.MerchantID,
	}
}

type requestBody struct {
	MerchantID  string            `json:"merchant_id"`
	Amount      int64             `json:"amount"`
	CallbackURL string            `json:"callback_url"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type verifyBody struct {
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount"`
	Authority  string `json:"authority"`
}

type apiEnvelope struct {
	Data struct {
		Code      int    `json:"code"`
		Authority string `json:"authority"`
		RefID     int64  `json:"ref_id"`
	} `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

func (c *clientImpl) RequestPayment(ctx context.Context, req *PaymentRequest) (*PaymentRequestResult, error) {
	body := requestBody{
		MerchantID:  c.merchantID,
		Amount:      req.Amount,
		CallbackURL: req.CallbackURL,
		Description: req.Description,
	}
	if req.Email != "" || req.Mobile != "" {
		body.Metadata = map[string]string{}
		if req.Email != "" {
			body.Metadata["email"] = req.Email
		}
		if req.Mobile != "" {
			body.Metadata["mobile"] = req.Mobile
		}
	}

	var env apiEnvelope
	if err := c.post(ctx, "/pg/v4/payment/request.json", body, &env); err != nil {
		return nil, err
	}
	res := &PaymentRequestResult{Code: env.Data.Code, Authority: env.Data.Authority}
	if env.Data.Authority != "" {
		res.RedirectURL = fmt.Sprintf("%s/%s", c.payURL, env.Data.Authority)
	}
	return res, nil
}

func (c *clientImpl) VerifyPayment(ctx context.Context, req *VerifyRequest) (*VerifyResult, error) {
	body := verifyBody{MerchantID: c.merchantID, Amount: req.Amount, Authority: req.Authority}
	var env apiEnvelope
	if err := c.post(ctx, "/pg/v4/payment/verify.json", body, &env); err != nil {
		return nil, err
	}
	res := &VerifyResult{Code: env.Data.Code}
	if env.Data.RefID != 0 {
		res.ReferenceID = fmt.Sprintf("%d", env.Data.RefID)
	}
	return res, nil
}

func (c *clientImpl) post(ctx context.Context, path string, body any, out *apiEnvelope) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
