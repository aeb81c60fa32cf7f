package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pandodao/wallet-core/core"
	"github.com/zyedidia/generic/cache"
	"golang.org/x/time/rate"
)

type Config struct {
	// RateLimit is the request rate per chain client, per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

func (c Config) limiter() *rate.Limiter {
	limit := rate.Inf
	if c.RateLimit > 0 {
		limit = rate.Limit(c.RateLimit)
	}

	return rate.NewLimiter(limit, max(c.Burst, 1))
}

// Dialer connects to the provider's first reachable RPC endpoint.
type Dialer func(ctx context.Context, provider *core.Provider) (core.ChainClient, error)

func NewDialer(cfg Config, logger *slog.Logger) Dialer {
	return func(ctx context.Context, provider *core.Provider) (core.ChainClient, error) {
		if len(provider.RPC) == 0 {
			return nil, fmt.Errorf("provider %d has no rpc endpoint", provider.ChainID)
		}

		var errs []error
		for _, url := range provider.RPC {
			client, err := dial(ctx, provider, url, cfg.limiter())
			if err == nil {
				return client, nil
			}

			logger.Warn("chain.Dial", "chain", provider.ChainID, "url", url, "err", err)
			errs = append(errs, err)
		}

		return nil, errors.Join(errs...)
	}
}

func dial(ctx context.Context, provider *core.Provider, url string, limiter *rate.Limiter) (core.ChainClient, error) {
	switch provider.Kind {
	case core.ChainKindEVM:
		return DialEVM(ctx, provider.ChainID, url, limiter)
	case core.ChainKindScilla:
		return DialScilla(ctx, provider.ChainID, url, limiter)
	default:
		return nil, fmt.Errorf("unsupported chain kind %s", provider.Kind)
	}
}

// Pool keeps one dialed client per chain id.
type Pool struct {
	dial Dialer

	mu      sync.Mutex
	clients *cache.Cache[uint64, core.ChainClient]
}

func NewPool(dial Dialer) *Pool {
	return &Pool{
		dial:    dial,
		clients: cache.New[uint64, core.ChainClient](64),
	}
}

func (p *Pool) Get(ctx context.Context, provider *core.Provider) (core.ChainClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients.Get(provider.ChainID); ok {
		return client, nil
	}

	client, err := p.dial(ctx, provider)
	if err != nil {
		return nil, err
	}

	p.clients.Put(provider.ChainID, client)
	return client, nil
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	p.clients.Each(func(chainID uint64, client core.ChainClient) {
		if c, ok := client.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	})

	p.clients = cache.New[uint64, core.ChainClient](64)
	return errors.Join(errs...)
}
