package llm

import (
	"context"

	"github.com/mfukata/kensho/internal/client"
)

// WithRateLimit wraps a provider so every Generate call runs through
// the generate-class resilience budget.
func WithRateLimit(p Provider, limiter *client.Client) Provider {
	if p == nil || limiter == nil {
		return p
	}
	return &limitedProvider{Provider: p, limiter: limiter}
}

type limitedProvider struct {
	Provider
	limiter *client.Client
}

func (l *limitedProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var resp *GenerateResponse
	err := l.limiter.Do(ctx, func(ctx context.Context) error {
		var genErr error
		resp, genErr = l.Provider.Generate(ctx, req)
		return genErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
