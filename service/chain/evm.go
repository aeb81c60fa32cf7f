package chain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pandodao/wallet-core/core"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// feePercentile is the priority fee percentile sampled per probed block.
const feePercentile = 50

type EVMClient struct {
	chainID uint64
	eth     *ethclient.Client
	limiter *rate.Limiter
}

func DialEVM(ctx context.Context, chainID uint64, url string, limiter *rate.Limiter) (*EVMClient, error) {
	eth, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}

	return &EVMClient{chainID: chainID, eth: eth, limiter: limiter}, nil
}

func (c *EVMClient) ChainID() uint64 { return c.chainID }

func (c *EVMClient) Close() error {
	c.eth.Close()
	return nil
}

// EstimateGasBatch fetches nonce, gas limit and gas price concurrently.
// probes > 0 also samples fee history over that many blocks; when the
// chain reports a base fee the estimate carries dynamic fee fields.
func (c *EVMClient) EstimateGasBatch(ctx context.Context, req *core.TransactionRequest, from string, probes int, override *core.GasOverride) (*core.GasEstimate, error) {
	p, ok := req.Evm()
	if !ok {
		return nil, core.TransactionError(core.ErrInvalidPayload)
	}

	sender := common.HexToAddress(from)
	msg := ethereum.CallMsg{From: sender, To: p.To, Data: p.Data}
	if p.Value != nil {
		msg.Value = p.Value.ToInt()
	}

	est := &core.GasEstimate{Probes: probes}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		nonce, err := c.eth.PendingNonceAt(ctx, sender)
		est.Nonce = nonce
		return err
	})

	if override == nil || override.GasLimit == 0 {
		g.Go(func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			gas, err := c.eth.EstimateGas(ctx, msg)
			est.GasLimit = gas
			return err
		})
	} else {
		est.GasLimit = override.GasLimit
	}

	if override == nil || override.GasPrice == nil {
		g.Go(func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			price, err := c.eth.SuggestGasPrice(ctx)
			est.GasPrice = price
			return err
		})
	} else {
		est.GasPrice = new(big.Int).Set(override.GasPrice)
	}

	var (
		baseFee *big.Int
		tip     *big.Int
	)

	if probes > 0 && (override == nil || override.GasPrice == nil) {
		g.Go(func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			// chains without fee history fall back to legacy pricing
			history, err := c.eth.FeeHistory(ctx, uint64(probes), nil, []float64{feePercentile})
			if err == nil {
				baseFee, tip = summarizeFeeHistory(history)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, core.TransactionError(err)
	}

	if baseFee != nil && baseFee.Sign() > 0 {
		est.BaseFee = baseFee
		est.MaxPriorityFee = tip
	}

	return est, nil
}

func summarizeFeeHistory(h *ethereum.FeeHistory) (baseFee, tip *big.Int) {
	if h == nil || len(h.BaseFee) == 0 {
		return nil, nil
	}

	baseFee = h.BaseFee[len(h.BaseFee)-1]
	tip = new(big.Int)

	var n int64
	for _, rewards := range h.Reward {
		if len(rewards) == 0 || rewards[0] == nil {
			continue
		}
		tip.Add(tip, rewards[0])
		n++
	}

	if n > 0 {
		tip.Div(tip, big.NewInt(n))
	}

	return baseFee, tip
}

func (c *EVMClient) Broadcast(ctx context.Context, receipts ...*core.SignedReceipt) ([]*core.HistoricalTransaction, error) {
	txs := make([]*core.HistoricalTransaction, 0, len(receipts))
	for _, receipt := range receipts {
		var tx types.Transaction
		if err := tx.UnmarshalBinary(receipt.Raw); err != nil {
			return txs, core.TransactionError(err)
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return txs, core.TransactionError(err)
		}

		if err := c.eth.SendTransaction(ctx, &tx); err != nil {
			return txs, core.TransactionError(err)
		}

		txs = append(txs, core.NewHistoricalTransaction(receipt, tx.Hash().Hex(), time.Now()))
	}

	return txs, nil
}

func (c *EVMClient) TransactionStatus(ctx context.Context, hash string) (core.TransactionStatus, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	receipt, err := c.eth.TransactionReceipt(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return core.TransactionStatusPending, nil
	}

	if err != nil {
		return 0, err
	}

	if receipt.Status == types.ReceiptStatusSuccessful {
		return core.TransactionStatusConfirmed, nil
	}

	return core.TransactionStatusRejected, nil
}

func (c *EVMClient) Balances(ctx context.Context, token *core.Token, addresses []string) ([]*big.Int, error) {
	balances := make([]*big.Int, len(addresses))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for idx := range addresses {
		owner := common.HexToAddress(addresses[idx])
		g.Go(func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}

			b, err := c.balanceOf(ctx, token, owner)
			balances[idx] = b
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return balances, nil
}

func (c *EVMClient) balanceOf(ctx context.Context, token *core.Token, owner common.Address) (*big.Int, error) {
	if token.Native {
		return c.eth.PendingBalanceAt(ctx, owner)
	}

	data, err := packBalanceOf(owner)
	if err != nil {
		return nil, err
	}

	contract := common.HexToAddress(token.Address)
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	return unpackBalance(out)
}
