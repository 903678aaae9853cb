package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultBaseURL = "https://api.paystack.co"

// ErrRequestFailed is returned when the gateway answers with status=false or
// a non-2xx code.
var ErrRequestFailed = errors.New("paystack request failed")

type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
}

func NewClient(baseURL, secretKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		secretKey:  secretKey,
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type InitializeRequest struct {
	Email       string            `json:"email"`
	AmountKobo  int64             `json:"amount"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type VerifyResult struct {
	ID         int64           `json:"id"`
	Status     string          `json:"status"`
	Reference  string          `json:"reference"`
	AmountKobo int64           `json:"amount"`
	Channel    string          `json:"channel"`
	PaidAt     *time.Time      `json:"paid_at"`
	Raw        json.RawMessage `json:"-"`
}

type RecipientRequest struct {
	Name          string
	AccountNumber string
	BankCode      string
}

type TransferRequest struct {
	AmountKobo int64
	Recipient  string
	Reference  string
	Reason     string
}

type TransferResult struct {
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
}

func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	var out InitializeResult
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", req, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	var out VerifyResult
	var raw json.RawMessage
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, &raw); err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

func (c *Client) CreateRecipient(ctx context.Context, req RecipientRequest) (string, error) {
	body := map[string]string{
		"type":           "nuban",
		"name":           req.Name,
		"account_number": req.AccountNumber,
		"bank_code":      req.BankCode,
		"currency":       "NGN",
	}
	var out struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := c.do(ctx, http.MethodPost, "/transferrecipient", body, &out, nil); err != nil {
		return "", err
	}
	return out.RecipientCode, nil
}

func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	body := map[string]any{
		"source":    "balance",
		"amount":    req.AmountKobo,
		"recipient": req.Recipient,
		"reference": req.Reference,
		"reason":    req.Reason,
	}
	var out TransferResult
	if err := c.do(ctx, http.MethodPost, "/transfer", body, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refund refunds a charge. amountKobo 0 refunds the full amount.
func (c *Client) Refund(ctx context.Context, reference string, amountKobo int64, reason string) error {
	body := map[string]any{"transaction": reference}
	if amountKobo > 0 {
		body["amount"] = amountKobo
	}
	if reason != "" {
		body["merchant_note"] = reason
	}
	return c.do(ctx, http.MethodPost, "/refund", body, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, raw *json.RawMessage) (err error) {
	ctx, span := otel.Tracer("paystack").Start(ctx, "Paystack "+method+" "+path)
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	span.SetAttributes(attribute.String("http.method", method))

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal paystack request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("paystack request error", "path", path, "error", err)
		return fmt.Errorf("paystack %s: %w", path, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read paystack response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return fmt.Errorf("failed to decode paystack response: %w", err)
	}
	if resp.StatusCode >= 300 || !env.Status {
		slog.Warn("paystack request rejected", "path", path, "status_code", resp.StatusCode, "message", env.Message)
		return fmt.Errorf("%w: %s", ErrRequestFailed, env.Message)
	}

	if raw != nil {
		*raw = env.Data
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode paystack data: %w", err)
		}
	}
	return nil
}

// VerifySignature checks X-Paystack-Signature: hex(HMAC-SHA512(body, secret)).
func VerifySignature(secretKey string, body []byte, signature string) bool {
	if secretKey == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

type Event struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Channel   string `json:"channel"`
	} `json:"data"`
}

func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode webhook: %w", err)
	}
	if ev.Event == "" || ev.Data.Reference == "" {
		return nil, fmt.Errorf("webhook missing event or reference")
	}
	return &ev, nil
}
