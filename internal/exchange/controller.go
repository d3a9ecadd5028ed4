// Package exchange drives one conversation turn at a time: it records the
// user's message, calls the backend, shows a typing indicator while waiting
// and records the reply.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/pharma-chat/internal/domain"
	"github.com/ashureev/pharma-chat/internal/endpoint"
	"github.com/ashureev/pharma-chat/internal/pharmacy"
	"github.com/ashureev/pharma-chat/internal/session"
)

// ErrSendInProgress is returned when a send starts while another is waiting
// for its reply.
var ErrSendInProgress = errors.New("a message is already being sent")

const noReplyText = "No reply received from backend."

// Renderer shows the transcript. Implementations need not be safe for
// concurrent use; the controller calls them from one goroutine at a time.
type Renderer interface {
	Render(messages []domain.Message)
	Append(msg domain.Message)
	ShowTyping()
	HideTyping()
}

// Backend is the subset of the pharmacy client the controller calls.
type Backend interface {
	Chat(ctx context.Context, req pharmacy.ChatRequest) (pharmacy.ChatResponse, error)
	SubmitPrescription(ctx context.Context, req pharmacy.PrescriptionRequest) (pharmacy.ReplyResponse, error)
	CreatePayment(ctx context.Context, req pharmacy.PaymentRequest) (pharmacy.PaymentLink, error)
	ConfirmPayment(ctx context.Context, req pharmacy.PaymentConfirmation) (pharmacy.ReplyResponse, error)
}

// OrderTracker records orders confirmed in assistant replies.
type OrderTracker interface {
	TrackPlacedOrder(ctx context.Context, reply, contextText string) (domain.OrderRecord, bool)
}

// ProfileSource supplies the identity sent with each chat request.
type ProfileSource interface {
	Profile(ctx context.Context) domain.Profile
}

// Reply is the outcome of a successful exchange.
type Reply struct {
	Text                 string
	PrescriptionRequired bool
	Order                *domain.OrderRecord
}

// Summary describes a session for a session picker.
type Summary struct {
	ID        string
	Title     string
	UpdatedAt time.Time
	Messages  int
	Active    bool
}

// Controller is the per-process session controller.
type Controller struct {
	sessions *session.Store
	backend  Backend
	tracker  OrderTracker
	profiles ProfileSource
	view     Renderer
	logger   *slog.Logger

	sending sync.Mutex
}

// Config holds the controller's collaborators.
type Config struct {
	Sessions *session.Store
	Backend  Backend
	Tracker  OrderTracker
	Profiles ProfileSource
	View     Renderer
	Logger   *slog.Logger
}

// NewController creates a Controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Sessions == nil || cfg.Backend == nil || cfg.View == nil {
		return nil, fmt.Errorf("exchange: sessions, backend and view are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		sessions: cfg.Sessions,
		backend:  cfg.Backend,
		tracker:  cfg.Tracker,
		profiles: cfg.Profiles,
		view:     cfg.View,
		logger:   cfg.Logger,
	}, nil
}

// Start initializes session storage and renders the active session.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.sessions.EnsureInitialized(ctx); err != nil {
		return fmt.Errorf("initialize sessions: %w", err)
	}
	if active, ok := c.sessions.Active(ctx); ok {
		c.view.Render(active.Messages)
	}
	return nil
}

// NewChat starts a fresh session seeded with the welcome message.
func (c *Controller) NewChat(ctx context.Context) (domain.Session, error) {
	created, err := c.sessions.Create(ctx, []domain.Message{{Role: domain.RoleAssistant, Text: session.WelcomeMessage}})
	if err != nil {
		return domain.Session{}, err
	}
	c.view.Render(created.Messages)
	return created, nil
}

// Open switches to session id and re-renders it. Unknown ids report false
// and change nothing.
func (c *Controller) Open(ctx context.Context, id string) bool {
	opened, ok := c.sessions.Open(ctx, id)
	if !ok {
		return false
	}
	c.view.Render(opened.Messages)
	return true
}

// Sessions lists every session, most recently updated first.
func (c *Controller) Sessions(ctx context.Context) []Summary {
	activeID := c.sessions.ActiveID()
	all := c.sessions.List(ctx)
	out := make([]Summary, 0, len(all))
	for _, s := range all {
		out = append(out, Summary{
			ID:        s.ID,
			Title:     session.Title(s),
			UpdatedAt: s.UpdatedAt,
			Messages:  len(s.Messages),
			Active:    s.ID == activeID,
		})
	}
	return out
}

// Send delivers one user message and records the reply. Empty input is a
// no-op. A send that overlaps another returns ErrSendInProgress without
// touching the transcript.
func (c *Controller) Send(ctx context.Context, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, nil
	}

	return c.exchange(ctx, text, func(ctx context.Context) (Reply, error) {
		profile := c.profile(ctx)
		resp, err := c.backend.Chat(ctx, pharmacy.ChatRequest{
			Message: text,
			UserID:  profile.UserID,
			Phone:   profile.Phone,
			ChatID:  c.sessions.ActiveID(),
		})
		if err != nil {
			return Reply{}, err
		}
		return Reply{Text: resp.Reply, PrescriptionRequired: resp.PrescriptionRequired}, nil
	})
}

// SubmitPrescription uploads the prescription image at path.
func (c *Controller) SubmitPrescription(ctx context.Context, path string) (Reply, error) {
	req, err := pharmacy.EncodeImageFile(path)
	if err != nil {
		return Reply{}, err
	}

	return c.exchange(ctx, "Uploaded prescription: "+req.Filename, func(ctx context.Context) (Reply, error) {
		resp, err := c.backend.SubmitPrescription(ctx, req)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Text: resp.Reply}, nil
	})
}

// CreatePayment requests a UPI link for an order. The link is returned, not
// added to the transcript.
func (c *Controller) CreatePayment(ctx context.Context, order domain.OrderRecord) (pharmacy.PaymentLink, error) {
	if !c.sending.TryLock() {
		return pharmacy.PaymentLink{}, ErrSendInProgress
	}
	defer c.sending.Unlock()

	c.view.ShowTyping()
	defer c.view.HideTyping()

	return c.backend.CreatePayment(ctx, pharmacy.PaymentRequest{
		MedicineName: order.MedicineName,
		Quantity:     order.Quantity,
		TotalPrice:   order.TotalPrice,
		Currency:     pharmacy.Currency,
	})
}

// ConfirmPayment reports how the user paid and records the reply.
func (c *Controller) ConfirmPayment(ctx context.Context, req pharmacy.PaymentConfirmation) (Reply, error) {
	userText := fmt.Sprintf("Paid for %d x %s via %s", req.Quantity, req.MedicineName, req.PaymentMode)
	return c.exchange(ctx, userText, func(ctx context.Context) (Reply, error) {
		resp, err := c.backend.ConfirmPayment(ctx, req)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Text: resp.Reply}, nil
	})
}

// exchange runs one serialized request/reply turn around call.
func (c *Controller) exchange(ctx context.Context, userText string, call func(context.Context) (Reply, error)) (Reply, error) {
	if !c.sending.TryLock() {
		return Reply{}, ErrSendInProgress
	}
	defer c.sending.Unlock()

	c.record(ctx, domain.RoleUser, userText)

	reply, err := c.await(ctx, call)
	if err != nil {
		c.logger.Warn("exchange failed", "session_id", c.sessions.ActiveID(), "error", err)
		c.record(ctx, domain.RoleAssistant, failureText(err))
		return Reply{}, err
	}

	if strings.TrimSpace(reply.Text) == "" {
		reply.Text = noReplyText
	}
	c.record(ctx, domain.RoleAssistant, reply.Text)

	if c.tracker != nil {
		if order, ok := c.tracker.TrackPlacedOrder(ctx, reply.Text, userText); ok {
			reply.Order = &order
		}
	}
	return reply, nil
}

// await shows the typing indicator for the duration of call.
func (c *Controller) await(ctx context.Context, call func(context.Context) (Reply, error)) (Reply, error) {
	c.view.ShowTyping()
	defer c.view.HideTyping()
	return call(ctx)
}

// record persists and displays a message. What the view shows matches what
// was stored: placeholder and empty text are dropped from both.
func (c *Controller) record(ctx context.Context, role domain.Role, text string) {
	text = domain.SanitizeText(role, text)
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := c.sessions.Append(ctx, role, text); err != nil {
		c.logger.Error("failed to persist message", "role", role, "error", err)
	}
	c.view.Append(domain.Message{Role: role, Text: text})
}

func (c *Controller) profile(ctx context.Context) domain.Profile {
	if c.profiles == nil {
		return domain.Profile{}
	}
	return c.profiles.Profile(ctx)
}

// failureText is the transcript line for a failed exchange.
func failureText(err error) string {
	var connErr *endpoint.ConnectivityError
	var statusErr *pharmacy.StatusError
	switch {
	case errors.As(err, &connErr):
		return "Cannot connect to backend. Tried: " + strings.Join(connErr.Attempted, ", ")
	case errors.As(err, &statusErr):
		return statusErr.Error()
	case errors.Is(err, endpoint.ErrNoCandidates):
		return "Cannot connect to backend: no backend address is configured."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Request cancelled before the backend replied."
	default:
		return "Something went wrong: " + err.Error()
	}
}
