// Package pharmacy is a typed client for the pharmacy assistant backend.
package pharmacy

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	Phone   string `json:"phone"`
	ChatID  string `json:"chat_id"`
}

// ChatResponse is the reply to POST /chat.
type ChatResponse struct {
	Reply                string `json:"reply"`
	PrescriptionRequired bool   `json:"prescription_required"`
}

// InventoryItem is one row of GET /inventory.
type InventoryItem struct {
	MedicineName string `json:"medicine_name"`
	Price        Price  `json:"price"`
}

// Price decodes a JSON number or a numeric string. Anything else decodes
// as an invalid price.
type Price struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Price) UnmarshalJSON(data []byte) error {
	*p = Price{}
	if string(data) == "null" {
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*p = Price{Value: n, Valid: n >= 0}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "₹"))
	if n, err := strconv.ParseFloat(s, 64); err == nil && n >= 0 {
		*p = Price{Value: n, Valid: true}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p Price) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

// PrescriptionRequest is the body of POST /prescription/submit.
type PrescriptionRequest struct {
	ImageData string `json:"image_data"`
	Filename  string `json:"filename"`
}

// ReplyResponse is the common {reply} response shape.
type ReplyResponse struct {
	Reply string `json:"reply"`
}

// PaymentRequest is the body of POST /payment/create.
type PaymentRequest struct {
	MedicineName string  `json:"medicine_name"`
	Quantity     int     `json:"quantity"`
	TotalPrice   float64 `json:"total_price"`
	Currency     string  `json:"currency"`
}

// PaymentLink is the reply to POST /payment/create.
type PaymentLink struct {
	Provider string  `json:"provider"`
	UPILink  string  `json:"upi_link"`
	QRURL    string  `json:"qr_url"`
	Amount   float64 `json:"amount"`
}

// PaymentConfirmation is the body of POST /payment/confirm.
type PaymentConfirmation struct {
	MedicineName string `json:"medicine_name"`
	Quantity     int    `json:"quantity"`
	PaymentMode  string `json:"payment_mode"`
	UPIConfirmed bool   `json:"upi_confirmed"`
}

// OrderMirror is the body of POST /orders: the order record plus patient
// metadata.
type OrderMirror struct {
	PatientID       string  `json:"patient_id"`
	Username        string  `json:"username"`
	Phone           string  `json:"phone"`
	MedicineName    string  `json:"medicine_name"`
	Quantity        int     `json:"quantity"`
	DosageFrequency string  `json:"dosage_frequency"`
	OrderedAt       string  `json:"ordered_at"`
	UnitPrice       float64 `json:"unit_price"`
	TotalPrice      float64 `json:"total_price"`
	Source          string  `json:"source"`
	Status          string  `json:"status"`
}

// OrderEvent is the body of POST /users/order-event.
type OrderEvent struct {
	Username string `json:"username"`
	Phone    string `json:"phone"`
	Quantity int    `json:"quantity"`
}
