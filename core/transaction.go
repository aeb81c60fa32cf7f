package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// ChainPayload is the chain specific half of a TransactionRequest. Only
// *ScillaPayload and *EvmPayload implement it.
type ChainPayload interface {
	chainPayload()
	Kind() ChainKind
}

type ScillaPayload struct {
	ChainID  uint16   `json:"chain_id"`
	Nonce    uint64   `json:"nonce,omitempty"`
	GasPrice *big.Int `json:"gas_price,omitempty"`
	GasLimit uint64   `json:"gas_limit,omitempty"`
	ToAddr   string   `json:"to_addr"`
	Amount   *big.Int `json:"amount"`
	Code     string   `json:"code,omitempty"`
	Data     string   `json:"data,omitempty"`
	Priority bool     `json:"priority,omitempty"`
}

type EvmPayload struct {
	Nonce                *hexutil.Uint64 `json:"nonce,omitempty"`
	To                   *common.Address `json:"to,omitempty"`
	Value                *hexutil.Big    `json:"value,omitempty"`
	Gas                  *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Data                 hexutil.Bytes   `json:"data,omitempty"`
	ChainID              *hexutil.Big    `json:"chainId,omitempty"`
}

func (*ScillaPayload) chainPayload() {}
func (*EvmPayload) chainPayload()    {}

func (*ScillaPayload) Kind() ChainKind { return ChainKindScilla }
func (*EvmPayload) Kind() ChainKind    { return ChainKindEVM }

type TokenContext struct {
	Value     decimal.Decimal `json:"value"`
	Symbol    string          `json:"symbol"`
	Decimals  uint8           `json:"decimals"`
	Address   string          `json:"address"`
	Recipient string          `json:"recipient,omitempty"`
}

type TransactionMetadata struct {
	ChainID uint64        `json:"chain_id"`
	Title   string        `json:"title,omitempty"`
	Icon    string        `json:"icon,omitempty"`
	Token   *TokenContext `json:"token,omitempty"`
}

type TransactionRequest struct {
	Metadata TransactionMetadata
	Payload  ChainPayload
}

func NewTransactionRequest(meta TransactionMetadata, payload ChainPayload) (*TransactionRequest, error) {
	req := &TransactionRequest{Metadata: meta, Payload: payload}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return req, nil
}

// Validate rejects requests without exactly one non-nil chain payload.
func (r *TransactionRequest) Validate() error {
	if r == nil {
		return TransactionError(ErrInvalidPayload)
	}

	switch p := r.Payload.(type) {
	case *ScillaPayload:
		if p == nil {
			return TransactionError(ErrInvalidPayload)
		}
	case *EvmPayload:
		if p == nil {
			return TransactionError(ErrInvalidPayload)
		}
	default:
		return TransactionError(ErrInvalidPayload)
	}

	return nil
}

// Clone copies the request and its payload so fields can be filled without
// touching the original. Big number fields are shared; they are replaced,
// never modified in place.
func (r *TransactionRequest) Clone() *TransactionRequest {
	if r == nil {
		return nil
	}

	c := &TransactionRequest{Metadata: r.Metadata}
	if r.Metadata.Token != nil {
		token := *r.Metadata.Token
		c.Metadata.Token = &token
	}

	switch p := r.Payload.(type) {
	case *ScillaPayload:
		if p != nil {
			payload := *p
			c.Payload = &payload
		} else {
			c.Payload = p
		}
	case *EvmPayload:
		if p != nil {
			payload := *p
			payload.Data = append(hexutil.Bytes(nil), p.Data...)
			c.Payload = &payload
		} else {
			c.Payload = p
		}
	default:
		c.Payload = r.Payload
	}

	return c
}

func (r *TransactionRequest) Kind() ChainKind {
	if r == nil || r.Payload == nil {
		return 0
	}

	return r.Payload.Kind()
}

func (r *TransactionRequest) Scilla() (*ScillaPayload, bool) {
	p, ok := r.Payload.(*ScillaPayload)
	return p, ok && p != nil
}

func (r *TransactionRequest) Evm() (*EvmPayload, bool) {
	p, ok := r.Payload.(*EvmPayload)
	return p, ok && p != nil
}

// NeedsEstimate reports whether nonce or fee fields are still unset.
func (r *TransactionRequest) NeedsEstimate() bool {
	if p, ok := r.Scilla(); ok {
		return p.Nonce == 0 || p.GasPrice == nil || p.GasLimit == 0
	}

	if p, ok := r.Evm(); ok {
		hasFee := p.GasPrice != nil || p.MaxFeePerGas != nil
		return p.Nonce == nil || p.Gas == nil || !hasFee
	}

	return false
}

// ApplyEstimate fills unset nonce and fee fields. multiplier scales the gas
// limit in percent; zero means 100.
func (r *TransactionRequest) ApplyEstimate(est *GasEstimate, multiplier uint32) {
	if est == nil {
		return
	}

	if multiplier == 0 {
		multiplier = 100
	}

	if p, ok := r.Scilla(); ok {
		if p.Nonce == 0 {
			p.Nonce = est.Nonce
		}
		if p.GasPrice == nil && est.GasPrice != nil {
			p.GasPrice = new(big.Int).Set(est.GasPrice)
		}
		if p.GasLimit == 0 {
			p.GasLimit = est.GasLimit
		}
		return
	}

	p, ok := r.Evm()
	if !ok {
		return
	}

	if p.Nonce == nil {
		nonce := hexutil.Uint64(est.Nonce)
		p.Nonce = &nonce
	}

	if p.Gas == nil {
		gas := hexutil.Uint64(est.GasLimit * uint64(multiplier) / 100)
		p.Gas = &gas
	}

	if p.GasPrice != nil || p.MaxFeePerGas != nil {
		return
	}

	if est.BaseFee != nil && est.MaxPriorityFee != nil {
		tip := new(big.Int).Set(est.MaxPriorityFee)
		maxFee := new(big.Int).Mul(est.BaseFee, big.NewInt(2))
		maxFee.Add(maxFee, tip)
		p.MaxPriorityFeePerGas = (*hexutil.Big)(tip)
		p.MaxFeePerGas = (*hexutil.Big)(maxFee)
	} else if est.GasPrice != nil {
		p.GasPrice = (*hexutil.Big)(new(big.Int).Set(est.GasPrice))
	}
}

type transactionRequestWire struct {
	Metadata TransactionMetadata `json:"metadata"`
	Scilla   *ScillaPayload      `json:"scilla,omitempty"`
	Evm      *EvmPayload         `json:"evm,omitempty"`
}

func (r TransactionRequest) MarshalJSON() ([]byte, error) {
	w := transactionRequestWire{Metadata: r.Metadata}
	switch p := r.Payload.(type) {
	case *ScillaPayload:
		w.Scilla = p
	case *EvmPayload:
		w.Evm = p
	}

	return json.Marshal(w)
}

func (r *TransactionRequest) UnmarshalJSON(b []byte) error {
	var w transactionRequestWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	switch {
	case w.Scilla != nil && w.Evm != nil, w.Scilla == nil && w.Evm == nil:
		return TransactionError(ErrInvalidPayload)
	case w.Scilla != nil:
		r.Payload = w.Scilla
	default:
		r.Payload = w.Evm
	}

	r.Metadata = w.Metadata
	return nil
}

type TransactionStatus uint8

const (
	_ TransactionStatus = iota
	TransactionStatusPending
	TransactionStatusConfirmed
	TransactionStatusRejected
)

func (s TransactionStatus) String() string {
	switch s {
	case TransactionStatusPending:
		return "Pending"
	case TransactionStatusConfirmed:
		return "Confirmed"
	case TransactionStatusRejected:
		return "Rejected"
	default:
		return fmt.Sprintf("TransactionStatus(%d)", uint8(s))
	}
}

func (s TransactionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TransactionStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Pending":
		*s = TransactionStatusPending
	case "Confirmed":
		*s = TransactionStatusConfirmed
	case "Rejected":
		*s = TransactionStatusRejected
	default:
		return fmt.Errorf("unknown transaction status %q", b)
	}

	return nil
}

// SignedReceipt is a signed, not yet broadcast transaction.
type SignedReceipt struct {
	Kind      ChainKind           `json:"kind"`
	ChainID   uint64              `json:"chain_id"`
	Hash      string              `json:"hash"`
	Raw       []byte              `json:"raw"`
	Sender    string              `json:"sender"`
	Recipient string              `json:"recipient"`
	Amount    decimal.Decimal     `json:"amount"`
	Fee       decimal.Decimal     `json:"fee"`
	Nonce     uint64              `json:"nonce"`
	Metadata  TransactionMetadata `json:"metadata"`
}

type HistoricalTransaction struct {
	ID        uint64            `json:"id,omitempty"`
	WalletID  string            `json:"wallet_id,omitempty"`
	Hash      string            `json:"hash"`
	Amount    decimal.Decimal   `json:"amount"`
	Sender    string            `json:"sender"`
	Recipient string            `json:"recipient"`
	Status    TransactionStatus `json:"status"`
	Fee       decimal.Decimal   `json:"fee"`
	Nonce     uint64            `json:"nonce"`
	Timestamp time.Time         `json:"timestamp"`
	ChainID   uint64            `json:"chain_id"`
	Kind      ChainKind         `json:"kind"`
	Title     string            `json:"title,omitempty"`
	Icon      string            `json:"icon,omitempty"`
	Token     *TokenContext     `json:"token,omitempty"`
}

// NewHistoricalTransaction normalizes a broadcast receipt into a pending record.
func NewHistoricalTransaction(receipt *SignedReceipt, hash string, at time.Time) *HistoricalTransaction {
	if hash == "" {
		hash = receipt.Hash
	}

	return &HistoricalTransaction{
		Hash:      hash,
		Amount:    receipt.Amount,
		Sender:    receipt.Sender,
		Recipient: receipt.Recipient,
		Status:    TransactionStatusPending,
		Fee:       receipt.Fee,
		Nonce:     receipt.Nonce,
		Timestamp: at,
		ChainID:   receipt.ChainID,
		Kind:      receipt.Kind,
		Title:     receipt.Metadata.Title,
		Icon:      receipt.Metadata.Icon,
		Token:     receipt.Metadata.Token,
	}
}

type HistoryStore interface {
	Append(ctx context.Context, txs ...*HistoricalTransaction) error
	// List returns the wallet history, oldest first.
	List(ctx context.Context, walletID string) ([]*HistoricalTransaction, error)
	UpdateStatus(ctx context.Context, walletID, hash string, status TransactionStatus) error
	ListStatus(ctx context.Context, status TransactionStatus, limit int) ([]*HistoricalTransaction, error)
}
