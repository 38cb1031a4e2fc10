package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/TobiSchelling/linkscope/internal/events"
	"github.com/TobiSchelling/linkscope/internal/llm"
	"github.com/TobiSchelling/linkscope/internal/retry"
)

// Generator wraps a Provider with rate limiting, retries on transient
// failures and structured-response validation. It is safe for concurrent use.
type Generator struct {
	provider llm.Provider
	retry    retry.Options
	limiter  *rate.Limiter
}

// NewGenerator creates a generator. rps <= 0 disables rate limiting.
func NewGenerator(provider llm.Provider, opts retry.Options, rps float64) *Generator {
	g := &Generator{provider: provider, retry: opts}
	if rps > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return g
}

// Generate sends prompt, retrying transient failures, and decodes the
// response into out. A response that does not match out's shape is returned
// as an *llm.SchemaError and is never retried.
func (g *Generator) Generate(ctx context.Context, em *events.Emitter, phase, prompt string, schema *genai.Schema, out any) error {
	if g == nil || g.provider == nil {
		return eris.New("no text-generation provider configured")
	}

	opts := g.retry
	opts.OnRetry = func(attempt int, delay time.Duration, err error) {
		zap.L().Warn("transient generation failure",
			zap.String("phase", phase),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		em.Progress(fmt.Sprintf("%s: service busy, retrying in %s (attempt %d of %d)",
			phase, delay.Round(time.Millisecond), attempt+2, opts.MaxRetries))
	}

	text, err := retry.Do(ctx, opts, llm.IsTransient, func(ctx context.Context) (string, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		return g.provider.Generate(ctx, prompt, schema)
	})
	if err != nil {
		return err
	}
	return llm.Decode(text, out)
}
