package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrNoCandidates is returned when there is no address to try.
var ErrNoCandidates = errors.New("no backend address configured")

// ConnectivityError reports that no candidate answered at all.
type ConnectivityError struct {
	Attempted []string
	Errors    []error
}

func (e *ConnectivityError) Error() string {
	return "cannot reach backend; tried " + strings.Join(e.Attempted, ", ")
}

// Unwrap exposes the per-candidate transport errors.
func (e *ConnectivityError) Unwrap() []error {
	return e.Errors
}

// Doer is the subset of *http.Client the resolver needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Resolver sends requests to the first candidate that serves the path.
type Resolver struct {
	client     Doer
	candidates []string
	logger     *slog.Logger

	mu     sync.Mutex
	sticky string
}

// NewResolver creates a Resolver over candidates. A nil client gets a
// default *http.Client with timeout.
func NewResolver(candidates []string, client Doer, timeout time.Duration, logger *slog.Logger) *Resolver {
	if client == nil {
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		client:     client,
		candidates: append([]string(nil), candidates...),
		logger:     logger,
	}
}

// Candidates returns the configured base addresses in probe order.
func (r *Resolver) Candidates() []string {
	return append([]string(nil), r.candidates...)
}

// Sticky returns the base address that most recently answered, or "".
func (r *Resolver) Sticky() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sticky
}

// order puts the sticky candidate first; the rest keep their order.
func (r *Resolver) order() []string {
	sticky := r.Sticky()
	if sticky == "" {
		return r.Candidates()
	}
	out := make([]string, 0, len(r.candidates))
	out = append(out, sticky)
	for _, c := range r.candidates {
		if c != sticky {
			out = append(out, c)
		}
	}
	return out
}

// Do sends method+path to each candidate in turn. A 404 means the candidate
// does not serve the path and the next one is tried; any other response is
// returned and its candidate becomes sticky. The caller closes the body.
func (r *Resolver) Do(ctx context.Context, method, path string, body []byte, header http.Header) (*http.Response, error) {
	candidates := r.order()
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	var (
		attempted []string
		errs      []error
		notFound  *http.Response
	)
	for _, base := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attempted = append(attempted, base)
		resp, err := r.send(ctx, method, base+path, body, header)
		if err != nil {
			r.logger.Debug("backend candidate unreachable", "candidate", base, "path", path, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", base, err))
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			r.logger.Debug("backend candidate does not serve path", "candidate", base, "path", path)
			if notFound != nil {
				drain(notFound)
			}
			notFound = resp
			continue
		}

		if notFound != nil {
			drain(notFound)
		}
		r.mu.Lock()
		r.sticky = base
		r.mu.Unlock()
		return resp, nil
	}

	if notFound != nil {
		return notFound, nil
	}
	return nil, &ConnectivityError{Attempted: attempted, Errors: errs}
}

func (r *Resolver) send(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return r.client.Do(req)
}

// PostJSON encodes v once and posts it through Do.
func (r *Resolver) PostJSON(ctx context.Context, path string, v any) (*http.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")
	return r.Do(ctx, http.MethodPost, path, body, header)
}

// GetJSON issues a GET through Do.
func (r *Resolver) GetJSON(ctx context.Context, path string) (*http.Response, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")
	return r.Do(ctx, http.MethodGet, path, nil, header)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
