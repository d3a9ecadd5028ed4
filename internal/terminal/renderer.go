// Package terminal renders the chat transcript and listings on a text
// terminal.
package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ashureev/pharma-chat/internal/domain"
	"github.com/fatih/color"
)

const typingText = "Pharmacist is typing..."

// Renderer writes the transcript to an io.Writer. It satisfies
// exchange.Renderer.
type Renderer struct {
	mu     sync.Mutex
	w      io.Writer
	user   *color.Color
	bot    *color.Color
	dim    *color.Color
	typing bool
}

// NewRenderer creates a Renderer on w. When plain is set no ANSI colors are
// written.
func NewRenderer(w io.Writer, plain bool) *Renderer {
	r := &Renderer{
		w:    w,
		user: color.New(color.FgGreen, color.Bold),
		bot:  color.New(color.FgCyan, color.Bold),
		dim:  color.New(color.Faint),
	}
	if plain {
		r.user.DisableColor()
		r.bot.DisableColor()
		r.dim.DisableColor()
	}
	return r
}

// Render clears the screen area we own and writes every message.
func (r *Renderer) Render(messages []domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearTyping()
	fmt.Fprintln(r.w)
	for _, m := range messages {
		r.write(m)
	}
}

// Append writes one message.
func (r *Renderer) Append(msg domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearTyping()
	r.write(msg)
}

// ShowTyping writes the typing indicator without a trailing newline.
func (r *Renderer) ShowTyping() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.typing {
		return
	}
	r.typing = true
	fmt.Fprint(r.w, r.dim.Sprint(typingText))
}

// HideTyping erases the indicator. Calling it without a visible indicator
// is a no-op.
func (r *Renderer) HideTyping() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearTyping()
}

func (r *Renderer) clearTyping() {
	if !r.typing {
		return
	}
	r.typing = false
	fmt.Fprint(r.w, "\r"+strings.Repeat(" ", len(typingText))+"\r")
}

func (r *Renderer) write(m domain.Message) {
	label := r.bot.Sprint("Pharmacist:")
	if m.Role == domain.RoleUser {
		label = r.user.Sprint("You:")
	}
	lines := strings.Split(strings.TrimRight(m.Text, "\n"), "\n")
	fmt.Fprintf(r.w, "%s %s\n", label, lines[0])
	for _, line := range lines[1:] {
		fmt.Fprintf(r.w, "    %s\n", line)
	}
	fmt.Fprintln(r.w)
}
