package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pandodao/wallet-core/core"
	"github.com/pandodao/wallet-core/service/keychain"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	scillaTransferGas = 50
	scillaContractGas = 5000
)

type ScillaClient struct {
	chainID uint64
	rpc     *rpc.Client
	limiter *rate.Limiter
}

func DialScilla(ctx context.Context, chainID uint64, url string, limiter *rate.Limiter) (*ScillaClient, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}

	return &ScillaClient{chainID: chainID, rpc: client, limiter: limiter}, nil
}

func (c *ScillaClient) ChainID() uint64 { return c.chainID }

func (c *ScillaClient) Close() error {
	c.rpc.Close()
	return nil
}

func (c *ScillaClient) call(ctx context.Context, result any, method string, args ...any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	return c.rpc.CallContext(ctx, result, method, args...)
}

type scillaBalance struct {
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// balance treats accounts unknown to the chain as empty.
func (c *ScillaClient) balance(ctx context.Context, address string) (*scillaBalance, error) {
	base16, err := keychain.ScillaBase16(address)
	if err != nil {
		return nil, err
	}

	var out scillaBalance
	if err := c.call(ctx, &out, "GetBalance", base16); err != nil {
		if strings.Contains(err.Error(), "not created") {
			return &scillaBalance{Balance: "0"}, nil
		}
		return nil, err
	}

	return &out, nil
}

func (c *ScillaClient) EstimateGasBatch(ctx context.Context, req *core.TransactionRequest, from string, probes int, override *core.GasOverride) (*core.GasEstimate, error) {
	p, ok := req.Scilla()
	if !ok {
		return nil, core.TransactionError(core.ErrInvalidPayload)
	}

	est := &core.GasEstimate{Probes: probes, GasLimit: scillaTransferGas}
	if p.Code != "" || p.Data != "" {
		est.GasLimit = scillaContractGas
	}

	if override != nil && override.GasLimit > 0 {
		est.GasLimit = override.GasLimit
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b, err := c.balance(ctx, from)
		if err != nil {
			return err
		}
		est.Nonce = b.Nonce + 1
		return nil
	})

	if override != nil && override.GasPrice != nil {
		est.GasPrice = new(big.Int).Set(override.GasPrice)
	} else {
		g.Go(func() error {
			var price string
			if err := c.call(ctx, &price, "GetMinimumGasPrice"); err != nil {
				return err
			}

			v, ok := new(big.Int).SetString(price, 10)
			if !ok {
				return fmt.Errorf("malformed gas price %q", price)
			}
			est.GasPrice = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, core.TransactionError(err)
	}

	return est, nil
}

type scillaCreateResult struct {
	Info   string `json:"Info"`
	TranID string `json:"TranID"`
}

func (c *ScillaClient) Broadcast(ctx context.Context, receipts ...*core.SignedReceipt) ([]*core.HistoricalTransaction, error) {
	txs := make([]*core.HistoricalTransaction, 0, len(receipts))
	for _, receipt := range receipts {
		var out scillaCreateResult
		if err := c.call(ctx, &out, "CreateTransaction", json.RawMessage(receipt.Raw)); err != nil {
			return txs, core.TransactionError(err)
		}

		if out.TranID == "" {
			return txs, core.TransactionError(core.ErrInvalidTxHash)
		}

		txs = append(txs, core.NewHistoricalTransaction(receipt, out.TranID, time.Now()))
	}

	return txs, nil
}

type scillaTransaction struct {
	Receipt struct {
		Success bool `json:"success"`
	} `json:"receipt"`
}

// TransactionStatus reports transactions the node does not know yet as
// pending.
func (c *ScillaClient) TransactionStatus(ctx context.Context, hash string) (core.TransactionStatus, error) {
	var out scillaTransaction
	if err := c.call(ctx, &out, "GetTransaction", strings.TrimPrefix(hash, "0x")); err != nil {
		if _, ok := err.(rpc.Error); ok {
			return core.TransactionStatusPending, nil
		}
		return 0, err
	}

	if out.Receipt.Success {
		return core.TransactionStatusConfirmed, nil
	}

	return core.TransactionStatusRejected, nil
}

func (c *ScillaClient) Balances(ctx context.Context, token *core.Token, addresses []string) ([]*big.Int, error) {
	balances := make([]*big.Int, len(addresses))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for idx := range addresses {
		address := addresses[idx]
		g.Go(func() error {
			b, err := c.balanceOf(ctx, token, address)
			balances[idx] = b
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return balances, nil
}

func (c *ScillaClient) balanceOf(ctx context.Context, token *core.Token, address string) (*big.Int, error) {
	if token.Native {
		b, err := c.balance(ctx, address)
		if err != nil {
			return nil, err
		}
		return parseAmount(b.Balance)
	}

	contract, err := keychain.ScillaBase16(token.Address)
	if err != nil {
		return nil, err
	}

	holder, err := keychain.ScillaBase16(address)
	if err != nil {
		return nil, err
	}

	var out struct {
		Balances map[string]string `json:"balances"`
	}
	holder = "0x" + holder
	if err := c.call(ctx, &out, "GetSmartContractSubState", contract, "balances", []string{holder}); err != nil {
		return nil, err
	}

	return parseAmount(out.Balances[holder])
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}

	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}

	return v, nil
}
