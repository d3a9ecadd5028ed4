package devserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ashureev/pharma-chat/internal/pharmacy"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Item is one inventory row.
type Item struct {
	MedicineName         string  `json:"medicine_name"`
	Price                float64 `json:"price"`
	Stock                int     `json:"stock"`
	PrescriptionRequired bool    `json:"prescription_required"`
}

// DefaultInventory is the stock the stub starts with.
func DefaultInventory() []Item {
	return []Item{
		{MedicineName: "Paracetamol", Price: 5, Stock: 200},
		{MedicineName: "Cetirizine", Price: 12.5, Stock: 80},
		{MedicineName: "Ibuprofen", Price: 8, Stock: 120},
		{MedicineName: "Amoxicillin", Price: 22, Stock: 40, PrescriptionRequired: true},
		{MedicineName: "Metformin", Price: 3.5, Stock: 0, PrescriptionRequired: true},
	}
}

var orderRequestPattern = regexp.MustCompile(`(?i)\border\s+(\d+)\s+(?:x\s+|units?\s+of\s+|strips?\s+of\s+)?([a-z][a-z0-9 -]*)`)

type pendingOrder struct {
	medicine string
	quantity int
}

// Server is the stub backend state.
type Server struct {
	logger *slog.Logger

	mu        sync.Mutex
	inventory []Item
	pending   *pendingOrder
	orders    []pharmacy.OrderMirror
	events    []pharmacy.OrderEvent
}

// New creates a Server seeded with inventory.
func New(inventory []Item, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:    logger,
		inventory: append([]Item(nil), inventory...),
	}
}

// Routes returns the HTTP handler for every backend path.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(CORS([]string{"*"}))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "Pharmacy Agent Backend Running"})
	})
	r.Post("/chat", s.handleChat)
	r.Get("/inventory", s.handleInventory)
	r.Post("/prescription/submit", s.handlePrescription)
	r.Route("/payment", func(r chi.Router) {
		r.Post("/create", s.handlePaymentCreate)
		r.Post("/confirm", s.handlePaymentConfirm)
	})
	r.Post("/orders", s.handleOrders)
	r.Post("/users/order-event", s.handleOrderEvent)
	return r
}

// RecordedOrders returns the orders mirrored to the stub so far.
func (s *Server) RecordedOrders() []pharmacy.OrderMirror {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pharmacy.OrderMirror(nil), s.orders...)
}

// RecordedEvents returns the order events reported so far.
func (s *Server) RecordedEvents() []pharmacy.OrderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pharmacy.OrderEvent(nil), s.events...)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req pharmacy.ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	s.logger.Info("stub chat request",
		"user_id", req.UserID,
		"chat_id", req.ChatID,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(req.Message),
	)

	m := orderRequestPattern.FindStringSubmatch(req.Message)
	if m == nil {
		JSON(w, http.StatusOK, pharmacy.ChatResponse{
			Reply: "I can help you order medicines. Try \"order 10 paracetamol\".",
		})
		return
	}

	qty, _ := strconv.Atoi(m[1])
	name := strings.TrimSpace(m[2])

	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.find(name)
	switch {
	case item == nil:
		JSON(w, http.StatusOK, pharmacy.ChatResponse{Reply: fmt.Sprintf("Sorry, %s is not in our inventory.", name)})
	case qty <= 0:
		JSON(w, http.StatusOK, pharmacy.ChatResponse{Reply: "Please tell me how many units you need."})
	case item.PrescriptionRequired:
		s.pending = &pendingOrder{medicine: item.MedicineName, quantity: qty}
		JSON(w, http.StatusOK, pharmacy.ChatResponse{
			Reply:                fmt.Sprintf("%s requires a prescription. Please upload it to continue.", item.MedicineName),
			PrescriptionRequired: true,
		})
	default:
		JSON(w, http.StatusOK, pharmacy.ChatResponse{Reply: s.place(item, qty)})
	}
}

func (s *Server) handleInventory(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	JSON(w, http.StatusOK, s.inventory)
}

func (s *Server) handlePrescription(w http.ResponseWriter, r *http.Request) {
	var req pharmacy.PrescriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !strings.HasPrefix(req.ImageData, "data:image/") || !strings.Contains(req.ImageData, ";base64,") {
		Error(w, http.StatusBadRequest, "image_data must be a base64 image data URL")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		JSON(w, http.StatusOK, pharmacy.ReplyResponse{Reply: "✅ Prescription received. No order is waiting for it."})
		return
	}
	pending := s.pending
	s.pending = nil

	item := s.find(pending.medicine)
	if item == nil {
		JSON(w, http.StatusOK, pharmacy.ReplyResponse{Reply: "✅ Prescription received, but the medicine is no longer listed."})
		return
	}
	JSON(w, http.StatusOK, pharmacy.ReplyResponse{Reply: "✅ Prescription received.\n\n" + s.place(item, pending.quantity)})
}

func (s *Server) handlePaymentCreate(w http.ResponseWriter, r *http.Request) {
	var req pharmacy.PaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MedicineName == "" || req.Quantity <= 0 || req.TotalPrice <= 0 {
		Error(w, http.StatusBadRequest, "medicine_name, quantity and total_price are required")
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = pharmacy.Currency
	}
	q := url.Values{}
	q.Set("pa", "pharmacy@upi")
	q.Set("pn", "AI Pharmacy")
	q.Set("am", strconv.FormatFloat(req.TotalPrice, 'f', 2, 64))
	q.Set("cu", currency)
	q.Set("tn", fmt.Sprintf("%d x %s", req.Quantity, req.MedicineName))
	link := "upi://pay?" + q.Encode()

	JSON(w, http.StatusOK, pharmacy.PaymentLink{
		Provider: "upi",
		UPILink:  link,
		QRURL:    "https://api.qrserver.com/v1/create-qr-code/?data=" + url.QueryEscape(link),
		Amount:   req.TotalPrice,
	})
}

func (s *Server) handlePaymentConfirm(w http.ResponseWriter, r *http.Request) {
	var req pharmacy.PaymentConfirmation
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.EqualFold(req.PaymentMode, "upi") && !req.UPIConfirmed {
		JSON(w, http.StatusOK, pharmacy.ReplyResponse{Reply: "UPI payment not confirmed yet. Complete the payment and confirm again."})
		return
	}
	JSON(w, http.StatusOK, pharmacy.ReplyResponse{
		Reply: fmt.Sprintf("Payment received via %s for %d x %s. Thank you!", strings.ToUpper(req.PaymentMode), req.Quantity, req.MedicineName),
	})
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	var req pharmacy.OrderMirror
	if !decodeBody(w, r, &req) {
		return
	}
	s.mu.Lock()
	s.orders = append(s.orders, req)
	s.mu.Unlock()
	JSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func (s *Server) handleOrderEvent(w http.ResponseWriter, r *http.Request) {
	var req pharmacy.OrderEvent
	if !decodeBody(w, r, &req) {
		return
	}
	s.mu.Lock()
	s.events = append(s.events, req)
	s.mu.Unlock()
	JSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// find returns the inventory row matching name. Callers hold s.mu.
func (s *Server) find(name string) *Item {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := range s.inventory {
		if strings.ToLower(s.inventory[i].MedicineName) == name {
			return &s.inventory[i]
		}
	}
	for i := range s.inventory {
		if strings.HasPrefix(name, strings.ToLower(s.inventory[i].MedicineName)) {
			return &s.inventory[i]
		}
	}
	return nil
}

// place deducts stock and returns the confirmation text. Callers hold s.mu.
func (s *Server) place(item *Item, qty int) string {
	if item.Stock <= 0 {
		return fmt.Sprintf("❌ Cannot place order. '%s' is out of stock.", item.MedicineName)
	}
	if qty > item.Stock {
		return fmt.Sprintf("⚠️ Only %d units are available.\nYou requested %d.\nPlease order %d or less.", item.Stock, qty, item.Stock)
	}
	item.Stock -= qty
	return fmt.Sprintf("✅ Order Confirmed!\nMedicine: %s\nQuantity Ordered: %d\n", item.MedicineName, qty)
}
