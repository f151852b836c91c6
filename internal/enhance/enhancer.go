// Package enhance asks a language model for questions the rule-based
// generator did not produce.
package enhance

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/ticketlens/internal/analysis"
	"github.com/kalambet/ticketlens/internal/ticket"
)

const (
	DefaultTimeout     = 20 * time.Second
	DefaultPerCategory = 5
)

// Chatter is a single-turn chat completion backend.
type Chatter interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// Enhancer implements analysis.Enhancer on top of a Chatter.
type Enhancer struct {
	client      Chatter
	timeout     time.Duration
	perCategory int
	logger      *slog.Logger
}

// Option configures an Enhancer.
type Option func(*Enhancer)

func WithTimeout(d time.Duration) Option {
	return func(e *Enhancer) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithPerCategory(n int) Option {
	return func(e *Enhancer) {
		if n > 0 {
			e.perCategory = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Enhancer) { e.logger = l }
}

// New creates an Enhancer using the given chat backend.
func New(client Chatter, opts ...Option) *Enhancer {
	e := &Enhancer{
		client:      client,
		timeout:     DefaultTimeout,
		perCategory: DefaultPerCategory,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type suggestions struct {
	General  []string `json:"general"`
	Design   []string `json:"design"`
	Business []string `json:"business"`
}

// Enhance returns extra questions by category. On any failure (timeout,
// malformed JSON, backend error) it returns nil and the rule-based result
// stands alone.
func (e *Enhancer) Enhance(ctx context.Context, t ticket.Ticket, r analysis.Result) map[analysis.QuestionCategory][]string {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	system, user := BuildPrompt(t, r, e.perCategory)
	raw, err := e.client.Chat(ctx, system, user)
	if err != nil {
		e.logger.Warn("question enhancement chat failed", "ticket", t.ID, "error", err)
		return nil
	}

	var s suggestions
	if err := json.Unmarshal([]byte(stripFences(raw)), &s); err != nil {
		e.logger.Warn("failed to unmarshal questions from LLM response", "ticket", t.ID, "error", err, "response", raw)
		return nil
	}

	return map[analysis.QuestionCategory][]string{
		analysis.QuestionGeneral:  e.clean(s.General),
		analysis.QuestionDesign:   e.clean(s.Design),
		analysis.QuestionBusiness: e.clean(s.Business),
	}
}

func (e *Enhancer) clean(qs []string) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		q = strings.Join(strings.Fields(q), " ")
		if q == "" {
			continue
		}
		out = append(out, q)
		if len(out) == e.perCategory {
			break
		}
	}
	return out
}

// stripFences removes a surrounding ```json code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
