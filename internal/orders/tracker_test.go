package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/pharma-chat/internal/domain"
	"github.com/ashureev/pharma-chat/internal/pharmacy"
	"github.com/ashureev/pharma-chat/internal/store"
	"github.com/google/go-cmp/cmp"
)

type fakePrices struct {
	prices map[string]float64
	err    error
	calls  int
}

func (f *fakePrices) Prices(_ context.Context) (map[string]float64, error) {
	f.calls++
	return f.prices, f.err
}

type fakeMirror struct {
	mu     sync.Mutex
	orders []pharmacy.OrderMirror
	events []pharmacy.OrderEvent
	err    error
}

func (f *fakeMirror) RecordOrder(_ context.Context, order pharmacy.OrderMirror) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, order)
	return f.err
}

func (f *fakeMirror) RecordOrderEvent(_ context.Context, event pharmacy.OrderEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

type fakeHistory string

func (h fakeHistory) LastUserMessage(_ context.Context) string { return string(h) }

type fakeProfiles domain.Profile

func (p fakeProfiles) Profile(_ context.Context) domain.Profile { return domain.Profile(p) }

var fixedNow = time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)

func newTestTracker(prices PriceSource, mirror Mirror) (*Tracker, *Log) {
	log := NewLog(store.NewMemory(), nil)
	return &Tracker{
		Log:    log,
		Prices: prices,
		Mirror: mirror,
		Now:    func() time.Time { return fixedNow },
	}, log
}

func TestTrackPlacedOrderUsesInventoryPrice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	prices := &fakePrices{prices: map[string]float64{"paracetamol": 5}}
	tracker, log := newTestTracker(prices, nil)

	record, ok := tracker.TrackPlacedOrder(ctx, "Order confirmed. Medicine: Paracetamol. Quantity Ordered: 10", "")
	if !ok {
		t.Fatal("expected order to be tracked")
	}

	want := domain.OrderRecord{
		Username:     domain.GuestUsername,
		MedicineName: "Paracetamol",
		Quantity:     10,
		UnitPrice:    5,
		TotalPrice:   50,
		OrderedAt:    fixedNow,
	}
	if diff := cmp.Diff(want, record); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]domain.OrderRecord{want}, log.List(ctx)); diff != "" {
		t.Fatalf("log mismatch (-want +got):\n%s", diff)
	}
}

func TestTrackPlacedOrderPrefersReplyPrices(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	prices := &fakePrices{prices: map[string]float64{"cetirizine": 99}}
	tracker, _ := newTestTracker(prices, nil)

	reply := "Order confirmed\nMedicine: Cetirizine\nQuantity: 2\nUnit Price: 12 INR\nTotal Price: 20 INR"
	record, ok := tracker.TrackPlacedOrder(ctx, reply, "")
	if !ok {
		t.Fatal("expected order to be tracked")
	}
	if record.UnitPrice != 12 || record.TotalPrice != 20 {
		t.Fatalf("reply prices not used: %+v", record)
	}
	if prices.calls != 0 {
		t.Fatalf("inventory should not be fetched when the reply has a unit price")
	}
}

func TestTrackPlacedOrderUnknownMedicineIsFree(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker, _ := newTestTracker(&fakePrices{prices: map[string]float64{"paracetamol": 5}}, nil)

	record, ok := tracker.TrackPlacedOrder(ctx, "Order confirmed. Medicine: Paracetamol Forte. Quantity Ordered: 1", "")
	if !ok {
		t.Fatal("expected order to be tracked")
	}
	if record.UnitPrice != 0 || record.TotalPrice != 0 {
		t.Fatalf("expected zero prices for non-exact match, got %+v", record)
	}
}

func TestTrackPlacedOrderInventoryFailureDowngrades(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker, log := newTestTracker(&fakePrices{err: errors.New("unreachable")}, nil)

	record, ok := tracker.TrackPlacedOrder(ctx, "Order confirmed. Medicine: Paracetamol. Quantity Ordered: 4", "")
	if !ok {
		t.Fatal("inventory failure must not prevent tracking")
	}
	if record.UnitPrice != 0 {
		t.Fatalf("expected zero unit price, got %v", record.UnitPrice)
	}
	if len(log.List(ctx)) != 1 {
		t.Fatal("expected the order in the local log")
	}
}

func TestTrackPlacedOrderIgnoresNonConfirmations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mirror := &fakeMirror{}
	tracker, log := newTestTracker(&fakePrices{}, mirror)

	for _, reply := range []string{
		"We have Paracetamol in stock.",
		"Order confirmed. Medicine: Paracetamol",
	} {
		if _, ok := tracker.TrackPlacedOrder(ctx, reply, ""); ok {
			t.Fatalf("reply %q should not be tracked", reply)
		}
	}
	if len(log.List(ctx)) != 0 || len(mirror.orders) != 0 {
		t.Fatal("nothing should be recorded for non-confirmations")
	}
}

func TestTrackPlacedOrderMirrorsBestEffort(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mirror := &fakeMirror{err: errors.New("503")}
	tracker, log := newTestTracker(&fakePrices{prices: map[string]float64{"amoxicillin": 8}}, mirror)
	tracker.History = fakeHistory("amoxicillin every 8 hours please")
	tracker.Profiles = fakeProfiles{UserID: "anon_x", Username: "asha", Phone: "9876543210"}

	record, ok := tracker.TrackPlacedOrder(ctx, "Order confirmed. Medicine: Amoxicillin. Quantity Ordered: 6", "")
	if !ok {
		t.Fatal("mirror failure must not roll back the local record")
	}
	if got := log.List(ctx); len(got) != 1 || got[0].Username != "asha" {
		t.Fatalf("unexpected local log %+v", got)
	}

	wantOrder := pharmacy.OrderMirror{
		PatientID:       "asha",
		Username:        "asha",
		Phone:           "+919876543210",
		MedicineName:    "Amoxicillin",
		Quantity:        6,
		DosageFrequency: "thrice daily",
		OrderedAt:       "2025-03-04T10:30:00Z",
		UnitPrice:       8,
		TotalPrice:      48,
		Source:          "chat-confirmation",
		Status:          "Placed",
	}
	if diff := cmp.Diff([]pharmacy.OrderMirror{wantOrder}, mirror.orders); diff != "" {
		t.Fatalf("mirror payload mismatch (-want +got):\n%s", diff)
	}
	wantEvent := pharmacy.OrderEvent{Username: "asha", Phone: "+919876543210", Quantity: 6}
	if diff := cmp.Diff([]pharmacy.OrderEvent{wantEvent}, mirror.events); diff != "" {
		t.Fatalf("order event mismatch (-want +got):\n%s", diff)
	}
	if record.TotalPrice != 48 {
		t.Fatalf("total = %v, want 48", record.TotalPrice)
	}
}

func TestTrackPlacedOrderContextTextWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mirror := &fakeMirror{}
	tracker, _ := newTestTracker(&fakePrices{}, mirror)
	tracker.History = fakeHistory("as needed")

	if _, ok := tracker.TrackPlacedOrder(ctx, "Order confirmed. Medicine: Ibuprofen. Quantity Ordered: 1", "twice daily after food"); !ok {
		t.Fatal("expected order to be tracked")
	}
	if got := mirror.orders[0].DosageFrequency; got != "twice daily" {
		t.Fatalf("dosage frequency = %q, want twice daily", got)
	}
}

func TestLogToleratesMalformedData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := store.NewMemory()
	_ = kv.Set(ctx, store.KeyOrders, "not json")
	log := NewLog(kv, nil)

	if got := log.List(ctx); len(got) != 0 {
		t.Fatalf("expected empty history, got %d", len(got))
	}
	if err := log.Append(ctx, domain.OrderRecord{MedicineName: "X", Quantity: 1}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if got := log.List(ctx); len(got) != 1 {
		t.Fatalf("expected one record, got %d", len(got))
	}
}
