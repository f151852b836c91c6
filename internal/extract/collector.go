package extract

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/kalambet/ticketlens/internal/analysis"
	"github.com/kalambet/ticketlens/internal/ticket"
)

// Collector gathers optional enrichment for a ticket from whichever sources
// are configured. Any source may be nil.
type Collector struct {
	Figma      *FigmaClient
	Confluence *Confluence
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Collect runs every configured extractor and merges what they find. Failures
// are logged and skipped, so the result is always usable. It returns nil when
// no source contributed anything.
func (c *Collector) Collect(ctx context.Context, t ticket.Ticket, pdfs []string) *analysis.Context {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		ec          analysis.Context
		complexity  []float64
		contributed bool
	)

	if c.Figma != nil && len(t.FigmaLinks) > 0 {
		facts, errs := c.Figma.ExtractAll(ctx, t.FigmaLinks)
		for i, f := range facts {
			if errs[i] != nil {
				logger.Warn("figma extraction failed", "url", t.FigmaLinks[i], "error", errs[i])
				continue
			}
			contributed = true
			ec.Sources = append(ec.Sources, "figma:"+f.FileKey)
			ec.Components = appendNew(ec.Components, f.Components...)
			ec.Screens = appendNew(ec.Screens, f.Screens...)
			ec.Pages += len(f.Pages)
			complexity = append(complexity, f.Complexity)
		}
	}

	for _, path := range pdfs {
		f, err := ExtractPDF(path)
		if err != nil {
			logger.Warn("pdf extraction failed", "path", path, "error", err)
			continue
		}
		contributed = true
		ec.Sources = append(ec.Sources, "pdf:"+path)
		ec.Components = appendNew(ec.Components, f.Components...)
		ec.Screens = appendNew(ec.Screens, f.Screens...)
		ec.DesignElements = appendNew(ec.DesignElements, f.Elements...)
		ec.DesignType = mergeDesignType(ec.DesignType, f.DesignType)
		ec.Pages += f.Pages
		complexity = append(complexity, f.Complexity)
	}

	if c.Confluence != nil && c.Confluence.Len() > 0 {
		f := c.Confluence.Context(t.Text())
		if len(f.Documents) > 0 {
			contributed = true
			for _, d := range f.Documents {
				ec.Sources = append(ec.Sources, "confluence:"+d)
			}
			ec.Technologies = appendNew(ec.Technologies, f.Technologies...)
			ec.BusinessRules = appendNew(ec.BusinessRules, f.BusinessRules...)
			ec.Components = appendNew(ec.Components, f.Components...)
		}
	}

	if !contributed {
		return nil
	}
	for _, s := range complexity {
		ec.Complexity = math.Max(ec.Complexity, s)
	}
	logger.Debug("collected context", "sources", len(ec.Sources), "components", len(ec.Components))
	return &ec
}

func mergeDesignType(cur, next string) string {
	switch {
	case cur == "" || cur == DesignDoc:
		return next
	case next == DesignDoc || next == cur:
		return cur
	default:
		return DesignMixed
	}
}
