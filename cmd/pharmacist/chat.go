package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ashureev/pharma-chat/internal/domain"
	"github.com/ashureev/pharma-chat/internal/exchange"
	"github.com/ashureev/pharma-chat/internal/pharmacy"
	"github.com/ashureev/pharma-chat/internal/terminal"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const chatHelp = `Commands:
  /new              start a new chat
  /sessions         list chats
  /open <n|id>      switch to chat n from /sessions, or by id
  /rx <image>       upload a prescription image
  /pay              get a UPI payment link for the last order
  /paid <upi|cash>  confirm payment for the last order
  /orders           show order history
  /help             show this help
  /quit             exit`

func newChatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), opts)
		},
	}
}

// repl holds the state of one interactive chat.
type repl struct {
	ctrl      *exchange.Controller
	app       *app
	out       io.Writer
	lastOrder *domain.OrderRecord
	listed    []exchange.Summary
}

func runChat(ctx context.Context, opts *options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			opts.logger.Error("Failed to close database", "error", closeErr)
		}
	}()

	ctrl, err := exchange.NewController(exchange.Config{
		Sessions: a.sessions,
		Backend:  a.client,
		Tracker:  a.tracker,
		Profiles: a.profiles,
		View:     terminal.NewRenderer(opts.out, opts.noColor),
		Logger:   opts.logger,
	})
	if err != nil {
		return err
	}

	bold := color.New(color.FgGreen, color.Bold)
	if opts.noColor {
		bold.DisableColor()
	}
	fmt.Fprintln(opts.out, bold.Sprint("AI Pharmacist"))
	fmt.Fprintf(opts.out, "Signed in as %s. Type /help for commands.\n", a.profiles.Profile(ctx).DisplayName())

	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	r := &repl{ctrl: ctrl, app: a, out: opts.out}
	if records := a.orderLog.List(ctx); len(records) > 0 {
		last := records[len(records)-1]
		r.lastOrder = &last
	}

	lines := readLines(ctx, opts.in)
	for {
		fmt.Fprint(opts.out, "> ")
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(opts.out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(opts.out)
			return nil
		}
		if quit := r.handle(ctx, line); quit {
			return nil
		}
	}
}

// readLines delivers input lines until EOF or ctx is done.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// handle runs one input line and reports whether the REPL should exit.
func (r *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		reply, err := r.ctrl.Send(ctx, line)
		r.afterExchange(reply, err)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/new":
		if _, err := r.ctrl.NewChat(ctx); err != nil {
			fmt.Fprintf(r.out, "Could not start a new chat: %v\n", err)
		}
	case "/sessions":
		r.listed = r.ctrl.Sessions(ctx)
		r.printListed()
	case "/open":
		r.open(ctx, arg)
	case "/rx":
		if arg == "" {
			fmt.Fprintln(r.out, "Usage: /rx <image>")
			return false
		}
		reply, err := r.ctrl.SubmitPrescription(ctx, arg)
		r.afterExchange(reply, err)
	case "/pay":
		r.pay(ctx)
	case "/paid":
		r.paid(ctx, arg)
	case "/orders":
		if err := terminal.PrintOrders(r.out, r.app.orderLog.List(ctx)); err != nil {
			fmt.Fprintf(r.out, "Could not list orders: %v\n", err)
		}
	default:
		fmt.Fprintf(r.out, "Unknown command %s. Type /help for commands.\n", cmd)
	}
	return false
}

func (r *repl) afterExchange(reply exchange.Reply, err error) {
	switch {
	case errors.Is(err, exchange.ErrSendInProgress):
		fmt.Fprintln(r.out, "Still waiting for the previous reply.")
	case err != nil:
		// The failure is already in the transcript.
	case reply.Order != nil:
		r.lastOrder = reply.Order
		fmt.Fprintf(r.out, "Order recorded: %d x %s, total %.2f %s. Type /pay for a payment link.\n",
			reply.Order.Quantity, reply.Order.MedicineName, reply.Order.TotalPrice, pharmacy.Currency)
	case reply.PrescriptionRequired:
		fmt.Fprintln(r.out, "A prescription is required. Upload it with /rx <image>.")
	}
}

func (r *repl) printListed() {
	if err := terminal.PrintSessions(r.out, r.listed); err != nil {
		fmt.Fprintf(r.out, "Could not list chats: %v\n", err)
	}
}

func (r *repl) open(ctx context.Context, arg string) {
	if arg == "" {
		fmt.Fprintln(r.out, "Usage: /open <n|id>")
		return
	}
	id := arg
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(r.listed) {
		id = r.listed[n-1].ID
	}
	if !r.ctrl.Open(ctx, id) {
		fmt.Fprintf(r.out, "No chat %q. Use /sessions to list chats.\n", arg)
	}
}

func (r *repl) pay(ctx context.Context) {
	if r.lastOrder == nil {
		fmt.Fprintln(r.out, "No order to pay for yet.")
		return
	}
	link, err := r.ctrl.CreatePayment(ctx, *r.lastOrder)
	if err != nil {
		fmt.Fprintf(r.out, "Could not create payment link: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "Pay %.2f %s via UPI:\n  %s\nQR code: %s\nThen type /paid upi.\n",
		link.Amount, pharmacy.Currency, link.UPILink, link.QRURL)
}

func (r *repl) paid(ctx context.Context, mode string) {
	if r.lastOrder == nil {
		fmt.Fprintln(r.out, "No order to pay for yet.")
		return
	}
	mode = strings.ToLower(mode)
	if mode == "" {
		mode = "upi"
	}
	reply, err := r.ctrl.ConfirmPayment(ctx, pharmacy.PaymentConfirmation{
		MedicineName: r.lastOrder.MedicineName,
		Quantity:     r.lastOrder.Quantity,
		PaymentMode:  mode,
		UPIConfirmed: mode == "upi",
	})
	r.afterExchange(reply, err)
}
