package balancer

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/pandodao/wallet-core/core"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Interval time.Duration `mapstructure:"interval" valid:"required"`
}

// Guard is the part of the registry the balancer needs.
type Guard interface {
	Read(ctx context.Context, fn func(bg core.Background) error) error
	WriteWallet(ctx context.Context, walletIndex int, fn func(bg core.Background, wallet *core.Wallet) error) error
}

// Balancer refreshes token balances of every account on the token's chain.
type Balancer struct {
	guard  Guard
	cfg    Config
	logger *slog.Logger
}

func New(guard Guard, cfg Config, logger *slog.Logger) *Balancer {
	if _, err := govalidator.ValidateStruct(cfg); err != nil {
		panic(err)
	}

	return &Balancer{
		guard:  guard,
		cfg:    cfg,
		logger: logger.With("worker", "balancer"),
	}
}

type job struct {
	walletIndex int
	walletID    string
	tokenIndex  int
	token       core.Token
	accounts    []int
	addresses   []string
	client      core.ChainClient
}

func (w *Balancer) Run(ctx context.Context) error {
	w.logger.Info("balancer start")

	for {
		_ = w.run(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.cfg.Interval):
		}
	}
}

func (w *Balancer) run(ctx context.Context) error {
	jobs, err := w.collect(ctx)
	if err != nil {
		w.logger.Debug("collect tokens", "err", err)
		return err
	}

	var g errgroup.Group
	g.SetLimit(4)

	for idx := range jobs {
		j := jobs[idx]
		g.Go(func() error {
			return w.handle(ctx, j)
		})
	}

	return g.Wait()
}

func (w *Balancer) collect(ctx context.Context) ([]*job, error) {
	var jobs []*job

	err := w.guard.Read(ctx, func(bg core.Background) error {
		for wi, wallet := range bg.Wallets() {
			for ti, token := range wallet.Tokens {
				j := &job{walletIndex: wi, walletID: wallet.ID, tokenIndex: ti, token: *token}
				for ai, account := range wallet.Accounts {
					if account.ChainID == token.ChainID {
						j.accounts = append(j.accounts, ai)
						j.addresses = append(j.addresses, account.Address)
					}
				}

				if len(j.addresses) == 0 {
					continue
				}

				client, err := bg.ChainClient(ctx, token.ChainID)
				if err != nil {
					w.logger.Error("bg.ChainClient", "chain", token.ChainID, "err", err)
					continue
				}

				j.client = client
				jobs = append(jobs, j)
			}
		}

		return nil
	})

	return jobs, err
}

func (w *Balancer) handle(ctx context.Context, j *job) error {
	logger := w.logger.With("wallet", j.walletID, "token", j.token.Symbol)

	amounts, err := j.client.Balances(ctx, &j.token, j.addresses)
	if err != nil {
		logger.Error("client.Balances", "err", err)
		return err
	}

	balances := make(map[int]string, len(amounts))
	for i, amount := range amounts {
		if i < len(j.accounts) && amount != nil {
			balances[j.accounts[i]] = amount.String()
		}
	}

	if len(balances) == 0 || unchanged(j.token.Balances, balances) {
		return nil
	}

	err = w.guard.WriteWallet(ctx, j.walletIndex, func(bg core.Background, wallet *core.Wallet) error {
		if wallet.ID != j.walletID {
			return nil
		}

		return bg.SetTokenBalances(ctx, j.walletIndex, j.tokenIndex, balances)
	})

	if err != nil {
		logger.Error("bg.SetTokenBalances", "err", err)
		return err
	}

	logger.Debug("balances updated", "accounts", len(balances))
	return nil
}

func unchanged(prev, next map[int]string) bool {
	for k, v := range next {
		old, ok := prev[k]
		if !ok || !sameAmount(old, v) {
			return false
		}
	}

	return true
}

func sameAmount(a, b string) bool {
	x, ok := new(big.Int).SetString(a, 10)
	if !ok {
		return false
	}

	y, ok := new(big.Int).SetString(b, 10)
	return ok && x.Cmp(y) == 0
}
