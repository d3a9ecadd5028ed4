package pharmacy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Currency tags every payment amount.
const Currency = "INR"

// maxErrorBody bounds how much of a failed response is kept for display.
const maxErrorBody = 4 << 10

// StatusError is a non-success response from a reachable backend.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.Code)
	if e.Status != "" {
		// Status is "500 Internal Server Error"; keep only the text part.
		text = strings.TrimSpace(strings.TrimPrefix(e.Status, fmt.Sprint(e.Code)))
	}
	return fmt.Sprintf("Backend error: %d %s", e.Code, text)
}

// Requester is the endpoint resolver surface the client needs.
type Requester interface {
	PostJSON(ctx context.Context, path string, v any) (*http.Response, error)
	GetJSON(ctx context.Context, path string) (*http.Response, error)
}

// Client calls the pharmacy backend through a Requester.
type Client struct {
	r Requester
}

// NewClient creates a Client.
func NewClient(r Requester) *Client {
	return &Client{r: r}
}

// Chat sends one user message and returns the assistant reply.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var out ChatResponse
	err := c.post(ctx, "/chat", req, &out)
	return out, err
}

// Inventory fetches the current price list.
func (c *Client) Inventory(ctx context.Context) ([]InventoryItem, error) {
	resp, err := c.r.GetJSON(ctx, "/inventory")
	if err != nil {
		return nil, err
	}
	var items []InventoryItem
	if err := decode(resp, "/inventory", &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Prices returns inventory prices keyed by lower-cased medicine name.
// Rows without a usable price are skipped.
func (c *Client) Prices(ctx context.Context) (map[string]float64, error) {
	items, err := c.Inventory(ctx)
	if err != nil {
		return nil, err
	}
	prices := make(map[string]float64, len(items))
	for _, item := range items {
		name := strings.ToLower(strings.TrimSpace(item.MedicineName))
		if name == "" || !item.Price.Valid {
			continue
		}
		if _, dup := prices[name]; !dup {
			prices[name] = item.Price.Value
		}
	}
	return prices, nil
}

// SubmitPrescription uploads a prescription image.
func (c *Client) SubmitPrescription(ctx context.Context, req PrescriptionRequest) (ReplyResponse, error) {
	var out ReplyResponse
	err := c.post(ctx, "/prescription/submit", req, &out)
	return out, err
}

// CreatePayment requests a UPI payment link.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentLink, error) {
	if req.Currency == "" {
		req.Currency = Currency
	}
	var out PaymentLink
	err := c.post(ctx, "/payment/create", req, &out)
	return out, err
}

// ConfirmPayment reports the payment outcome and returns the assistant reply.
func (c *Client) ConfirmPayment(ctx context.Context, req PaymentConfirmation) (ReplyResponse, error) {
	var out ReplyResponse
	err := c.post(ctx, "/payment/confirm", req, &out)
	return out, err
}

// RecordOrder mirrors a tracked order. The response body is ignored.
func (c *Client) RecordOrder(ctx context.Context, order OrderMirror) error {
	return c.post(ctx, "/orders", order, nil)
}

// RecordOrderEvent reports an order to the per-user analytics endpoint.
func (c *Client) RecordOrderEvent(ctx context.Context, event OrderEvent) error {
	return c.post(ctx, "/users/order-event", event, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	resp, err := c.r.PostJSON(ctx, path, body)
	if err != nil {
		return err
	}
	return decode(resp, path, out)
}

// decode closes resp and unmarshals a success body into out (when non-nil).
func decode(resp *http.Response, path string, out any) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// EncodeImageFile reads path into a data URL suitable for
// PrescriptionRequest.ImageData.
func EncodeImageFile(path string) (PrescriptionRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PrescriptionRequest{}, fmt.Errorf("read prescription: %w", err)
	}
	if len(data) == 0 {
		return PrescriptionRequest{}, fmt.Errorf("read prescription: %s is empty", path)
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}

	return PrescriptionRequest{
		ImageData: "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data),
		Filename:  filepath.Base(path),
	}, nil
}
