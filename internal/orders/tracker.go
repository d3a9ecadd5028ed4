package orders

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/pharma-chat/internal/domain"
	"github.com/ashureev/pharma-chat/internal/pharmacy"
)

const (
	mirrorSource = "chat-confirmation"
	mirrorStatus = "Placed"
)

// PriceSource supplies current inventory prices keyed by lower-cased name.
type PriceSource interface {
	Prices(ctx context.Context) (map[string]float64, error)
}

// Mirror receives best-effort copies of tracked orders.
type Mirror interface {
	RecordOrder(ctx context.Context, order pharmacy.OrderMirror) error
	RecordOrderEvent(ctx context.Context, event pharmacy.OrderEvent) error
}

// History supplies the latest user message when the caller has none.
type History interface {
	LastUserMessage(ctx context.Context) string
}

// ProfileSource supplies the identity orders are tagged with.
type ProfileSource interface {
	Profile(ctx context.Context) domain.Profile
}

// Tracker records confirmed orders found in assistant replies.
type Tracker struct {
	Extractor Extractor
	Log       *Log
	Prices    PriceSource
	Mirror    Mirror
	History   History
	Profiles  ProfileSource
	Logger    *slog.Logger
	Now       func() time.Time
}

// TrackPlacedOrder extracts an order from reply, completes its prices and
// appends it to the local log. contextText is the user message that led to
// the reply; when empty the latest user message is used. Replies that are
// not confirmations are ignored.
func (t *Tracker) TrackPlacedOrder(ctx context.Context, reply, contextText string) (domain.OrderRecord, bool) {
	extractor := t.Extractor
	if extractor == nil {
		extractor = RegexpExtractor{}
	}
	order, ok := extractor.Extract(reply)
	if !ok {
		return domain.OrderRecord{}, false
	}

	logger := t.logger()
	unitPrice := order.UnitPrice
	if unitPrice <= 0 {
		unitPrice = t.lookupPrice(ctx, order.MedicineName)
	}
	totalPrice := order.TotalPrice
	if totalPrice <= 0 {
		totalPrice = unitPrice * float64(order.Quantity)
	}

	var profile domain.Profile
	if t.Profiles != nil {
		profile = t.Profiles.Profile(ctx)
	}

	record := domain.OrderRecord{
		Username:     profile.DisplayName(),
		MedicineName: order.MedicineName,
		Quantity:     order.Quantity,
		UnitPrice:    unitPrice,
		TotalPrice:   totalPrice,
		OrderedAt:    t.now().UTC(),
	}

	if err := t.Log.Append(ctx, record); err != nil {
		logger.Error("failed to record order locally", "medicine", record.MedicineName, "error", err)
		return domain.OrderRecord{}, false
	}
	logger.Info("order tracked",
		"medicine", record.MedicineName,
		"quantity", record.Quantity,
		"total_price", record.TotalPrice,
	)

	if strings.TrimSpace(contextText) == "" && t.History != nil {
		contextText = t.History.LastUserMessage(ctx)
	}
	t.mirror(ctx, record, profile, InferDosageFrequency(contextText))

	return record, true
}

// lookupPrice matches name case-insensitively against a fresh price list.
// Any failure yields zero.
func (t *Tracker) lookupPrice(ctx context.Context, name string) float64 {
	if t.Prices == nil {
		return 0
	}
	prices, err := t.Prices.Prices(ctx)
	if err != nil {
		t.logger().Warn("inventory lookup failed, pricing order at zero", "medicine", name, "error", err)
		return 0
	}
	return prices[strings.ToLower(strings.TrimSpace(name))]
}

// mirror copies the record to the backend. Failures are logged only.
func (t *Tracker) mirror(ctx context.Context, record domain.OrderRecord, profile domain.Profile, frequency string) {
	if t.Mirror == nil {
		return
	}
	logger := t.logger()
	phone := NormalizePhone(profile.Phone)

	patientID := profile.Username
	if patientID == "" {
		patientID = record.Username
	}
	err := t.Mirror.RecordOrder(ctx, pharmacy.OrderMirror{
		PatientID:       patientID,
		Username:        record.Username,
		Phone:           phone,
		MedicineName:    record.MedicineName,
		Quantity:        record.Quantity,
		DosageFrequency: frequency,
		OrderedAt:       record.OrderedAt.Format(time.RFC3339),
		UnitPrice:       record.UnitPrice,
		TotalPrice:      record.TotalPrice,
		Source:          mirrorSource,
		Status:          mirrorStatus,
	})
	if err != nil {
		logger.Warn("order mirror failed", "medicine", record.MedicineName, "error", err)
	}

	err = t.Mirror.RecordOrderEvent(ctx, pharmacy.OrderEvent{
		Username: record.Username,
		Phone:    phone,
		Quantity: record.Quantity,
	})
	if err != nil {
		logger.Warn("order event mirror failed", "medicine", record.MedicineName, "error", err)
	}
}

func (t *Tracker) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

func (t *Tracker) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}

// NormalizePhone keeps digits, prefixing ten-digit numbers with +91 and
// everything else with +. Input without digits yields "".
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case d == "":
		return ""
	case !strings.HasPrefix(raw, "+") && len(d) == 10:
		return "+91" + d
	default:
		return "+" + d
	}
}
