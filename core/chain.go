package core

import (
	"context"
	"math/big"
)

// GasEstimate is the result of fee probing. BaseFee and MaxPriorityFee are
// only set on chains with dynamic fees.
type GasEstimate struct {
	Nonce          uint64   `json:"nonce"`
	GasLimit       uint64   `json:"gas_limit"`
	GasPrice       *big.Int `json:"gas_price,omitempty"`
	BaseFee        *big.Int `json:"base_fee,omitempty"`
	MaxPriorityFee *big.Int `json:"max_priority_fee,omitempty"`
	Probes         int      `json:"probes"`
}

// GasOverride pins fields that probing must not change.
type GasOverride struct {
	GasLimit uint64   `json:"gas_limit,omitempty"`
	GasPrice *big.Int `json:"gas_price,omitempty"`
}

type ChainClient interface {
	ChainID() uint64
	EstimateGasBatch(ctx context.Context, req *TransactionRequest, from string, probes int, override *GasOverride) (*GasEstimate, error)
	// Broadcast submits signed receipts and returns one pending record per
	// accepted transaction.
	Broadcast(ctx context.Context, receipts ...*SignedReceipt) ([]*HistoricalTransaction, error)
	TransactionStatus(ctx context.Context, hash string) (TransactionStatus, error)
	// Balances returns the balance of token for each address, in base units.
	Balances(ctx context.Context, token *Token, addresses []string) ([]*big.Int, error)
}
