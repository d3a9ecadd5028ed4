package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ashureev/pharma-chat/internal/endpoint"
	"github.com/ashureev/pharma-chat/internal/exchange"
	"github.com/ashureev/pharma-chat/internal/terminal"
	"github.com/spf13/cobra"
)

func newSessionsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List chat sessions, most recent first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctrl, err := exchange.NewController(exchange.Config{
				Sessions: a.sessions,
				Backend:  a.client,
				View:     terminal.NewRenderer(cmd.ErrOrStderr(), true),
				Logger:   opts.logger,
			})
			if err != nil {
				return err
			}
			if err := a.sessions.EnsureInitialized(ctx); err != nil {
				return err
			}
			return terminal.PrintSessions(cmd.OutOrStdout(), ctrl.Sessions(ctx))
		},
	}
}

func newOrdersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "Show the local order history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			return terminal.PrintOrders(cmd.OutOrStdout(), a.orderLog.List(cmd.Context()))
		},
	}
}

func newProfileCmd(opts *options) *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update the local user profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			p := a.profiles.Profile(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User ID:  %s\n", p.UserID)
			fmt.Fprintf(out, "Username: %s\n", p.DisplayName())
			fmt.Fprintf(out, "Phone:    %s\n", valueOrDash(p.Phone))
			return nil
		},
	}

	var name, phone string
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Save the username and phone sent with chats and orders",
		Example: `  pharmacist profile set --name Asha --phone "+91 98765 43210"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			current := a.profiles.Profile(cmd.Context())
			if !cmd.Flags().Changed("name") {
				name = current.Username
			}
			if !cmd.Flags().Changed("phone") {
				phone = current.Phone
			}
			p, err := a.profiles.Save(cmd.Context(), name, phone)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved profile for %s.\n", p.DisplayName())
			return nil
		},
	}
	setCmd.Flags().StringVar(&name, "name", "", "Username")
	setCmd.Flags().StringVar(&phone, "phone", "", "Phone number")

	profileCmd.AddCommand(setCmd)
	return profileCmd
}

func newBackendCmd(opts *options) *cobra.Command {
	backendCmd := &cobra.Command{
		Use:   "backend",
		Short: "Show the backend addresses the client will try",
		Long: `Show the backend base addresses in the order they are tried.

A saved override is tried first, then the default address and local
development ports. The runtime override (--backend or PHARMA_BACKEND_URL)
beats the saved one.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			for i, c := range a.resolver.Candidates() {
				fmt.Fprintf(out, "%d. %s\n", i+1, c)
			}
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <url>",
		Short: "Save a backend base URL override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := parseBaseURL(args[0])
			if err != nil {
				return err
			}
			kv, err := openKV(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer kv.Close()

			if err := endpoint.SaveOverride(cmd.Context(), kv, base); err != nil {
				return fmt.Errorf("save backend override: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backend override saved: %s\n", base)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the saved backend override",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kv, err := openKV(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer kv.Close()

			if err := endpoint.ClearOverride(cmd.Context(), kv); err != nil {
				return fmt.Errorf("clear backend override: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Backend override cleared.")
			return nil
		},
	}

	backendCmd.AddCommand(setCmd, clearCmd)
	return backendCmd
}

// parseBaseURL accepts an absolute http(s) URL and returns it without
// trailing slashes.
func parseBaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid backend URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid backend URL %q: want http(s)://host[:port]", raw)
	}
	return endpoint.Normalize(u.String()), nil
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
