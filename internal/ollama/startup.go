package ollama

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that Ollama is running and the client's model is
// available, pulling it with progress written to w when missing.
// Returns a non-nil error if Ollama is unreachable or the pull fails.
func EnsureReady(ctx context.Context, c *Client, w io.Writer) error {
	if !c.IsRunning(ctx) {
		return fmt.Errorf("ollama is not running at %s (start it with: ollama serve)", c.baseURL)
	}
	if c.HasModel(ctx, c.model) {
		fmt.Fprintf(w, "model %s: ready\n", c.model)
		return nil
	}

	fmt.Fprintf(w, "model %s: pulling...\n", c.model)
	err := c.PullModel(ctx, c.model, func(p PullProgress) {
		if p.Total > 0 {
			fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, float64(p.Completed)/float64(p.Total)*100)
		} else {
			fmt.Fprintf(w, "  %s\n", p.Status)
		}
	})
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", c.model, err)
	}
	fmt.Fprintf(w, "model %s: ready\n", c.model)
	return nil
}
