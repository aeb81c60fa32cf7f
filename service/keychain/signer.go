package keychain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pandodao/wallet-core/core"
	"github.com/shopspring/decimal"
)

// Sign signs req with key for the provider's chain.
func Sign(req *core.TransactionRequest, key *btcec.PrivateKey, provider *core.Provider) (*core.SignedReceipt, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.Kind() != provider.Kind {
		return nil, core.TransactionError(core.ErrInvalidPayload)
	}

	if p, ok := req.Evm(); ok {
		return signEvm(req.Metadata, p, key, provider)
	}

	p, _ := req.Scilla()
	return signScilla(req.Metadata, p, key, provider)
}

func signEvm(meta core.TransactionMetadata, p *core.EvmPayload, key *btcec.PrivateKey, provider *core.Provider) (*core.SignedReceipt, error) {
	if p.Nonce == nil || p.Gas == nil {
		return nil, core.TransactionError(core.ErrMissingNonce)
	}

	chainID := new(big.Int).SetUint64(provider.ChainID)
	if p.ChainID != nil {
		chainID = p.ChainID.ToInt()
	}

	value := new(big.Int)
	if p.Value != nil {
		value = p.Value.ToInt()
	}

	var (
		txData   types.TxData
		feePrice *big.Int
	)

	switch {
	case p.GasPrice != nil:
		feePrice = p.GasPrice.ToInt()
		txData = &types.LegacyTx{
			Nonce:    uint64(*p.Nonce),
			GasPrice: feePrice,
			Gas:      uint64(*p.Gas),
			To:       p.To,
			Value:    value,
			Data:     p.Data,
		}
	case p.MaxFeePerGas != nil:
		feePrice = p.MaxFeePerGas.ToInt()
		tip := new(big.Int)
		if p.MaxPriorityFeePerGas != nil {
			tip = p.MaxPriorityFeePerGas.ToInt()
		}
		txData = &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     uint64(*p.Nonce),
			GasTipCap: tip,
			GasFeeCap: feePrice,
			Gas:       uint64(*p.Gas),
			To:        p.To,
			Value:     value,
			Data:      p.Data,
		}
	default:
		return nil, core.TransactionError(core.ErrMissingNonce)
	}

	priv, err := crypto.ToECDSA(key.Serialize())
	if err != nil {
		return nil, core.InvalidSecretMaterialError(err)
	}

	tx, err := types.SignTx(types.NewTx(txData), types.LatestSignerForChainID(chainID), priv)
	if err != nil {
		return nil, core.TransactionError(err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, core.TransactionError(err)
	}

	receipt := &core.SignedReceipt{
		Kind:     core.ChainKindEVM,
		ChainID:  provider.ChainID,
		Hash:     tx.Hash().Hex(),
		Raw:      raw,
		Sender:   crypto.PubkeyToAddress(priv.PublicKey).Hex(),
		Amount:   decimal.NewFromBigInt(value, 0),
		Fee:      decimal.NewFromBigInt(new(big.Int).Mul(feePrice, new(big.Int).SetUint64(tx.Gas())), 0),
		Nonce:    tx.Nonce(),
		Metadata: meta,
	}

	if p.To != nil {
		receipt.Recipient = p.To.Hex()
	}

	applyTokenContext(receipt)
	return receipt, nil
}

// scillaCoreInfo is the signed part of a Scilla transaction. Field order
// is the canonical encoding.
type scillaCoreInfo struct {
	Version  uint32 `json:"version"`
	Nonce    uint64 `json:"nonce"`
	ToAddr   string `json:"toAddr"`
	Amount   string `json:"amount"`
	PubKey   string `json:"pubKey"`
	GasPrice string `json:"gasPrice"`
	GasLimit string `json:"gasLimit"`
	Code     string `json:"code"`
	Data     string `json:"data"`
	Priority bool   `json:"priority"`
}

type scillaSignedTx struct {
	scillaCoreInfo
	Signature string `json:"signature"`
}

// ScillaVersion packs the chain id the way Scilla nodes expect it.
func ScillaVersion(chainID uint16) uint32 {
	return uint32(chainID)<<16 | 1
}

func signScilla(meta core.TransactionMetadata, p *core.ScillaPayload, key *btcec.PrivateKey, provider *core.Provider) (*core.SignedReceipt, error) {
	if p.Nonce == 0 || p.GasPrice == nil || p.GasLimit == 0 {
		return nil, core.TransactionError(core.ErrMissingNonce)
	}

	if p.Amount == nil || p.Amount.Sign() < 0 {
		return nil, core.TransactionError(core.ErrInvalidAmount)
	}

	to, err := ScillaBase16(p.ToAddr)
	if err != nil {
		return nil, err
	}

	chainID := p.ChainID
	if chainID == 0 {
		chainID = uint16(provider.ChainID)
	}

	info := scillaCoreInfo{
		Version:  ScillaVersion(chainID),
		Nonce:    p.Nonce,
		ToAddr:   to,
		Amount:   p.Amount.String(),
		PubKey:   hex.EncodeToString(key.PubKey().SerializeCompressed()),
		GasPrice: p.GasPrice.String(),
		GasLimit: new(big.Int).SetUint64(p.GasLimit).String(),
		Code:     p.Code,
		Data:     p.Data,
		Priority: p.Priority,
	}

	msg, err := json.Marshal(info)
	if err != nil {
		return nil, core.TransactionError(err)
	}

	digest := sha256.Sum256(msg)
	sig, err := schnorr.Sign(key, digest[:])
	if err != nil {
		return nil, core.TransactionError(err)
	}

	raw, err := json.Marshal(scillaSignedTx{scillaCoreInfo: info, Signature: hex.EncodeToString(sig.Serialize())})
	if err != nil {
		return nil, core.TransactionError(err)
	}

	sender, err := EncodeScillaAddress(scillaAddressBytes(key.PubKey()))
	if err != nil {
		return nil, err
	}

	recipient, _ := ParseAddress(core.ChainKindScilla, to)

	receipt := &core.SignedReceipt{
		Kind:      core.ChainKindScilla,
		ChainID:   provider.ChainID,
		Hash:      hex.EncodeToString(digest[:]),
		Raw:       raw,
		Sender:    sender,
		Recipient: recipient,
		Amount:    decimal.NewFromBigInt(p.Amount, 0),
		Fee:       decimal.NewFromBigInt(new(big.Int).Mul(p.GasPrice, new(big.Int).SetUint64(p.GasLimit)), 0),
		Nonce:     p.Nonce,
		Metadata:  meta,
	}

	applyTokenContext(receipt)
	return receipt, nil
}

// applyTokenContext reports token transfers by their token amount and
// recipient rather than the contract call.
func applyTokenContext(receipt *core.SignedReceipt) {
	token := receipt.Metadata.Token
	if token == nil {
		return
	}

	receipt.Amount = token.Value
	if token.Recipient != "" {
		receipt.Recipient = token.Recipient
	}
}

// VerifyScilla checks the signature of a raw Scilla transaction.
func VerifyScilla(raw []byte) error {
	var tx scillaSignedTx
	if err := json.Unmarshal(raw, &tx); err != nil {
		return err
	}

	pubBytes, err := hex.DecodeString(tx.PubKey)
	if err != nil {
		return err
	}

	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return err
	}

	sigBytes, err := hex.DecodeString(tx.Signature)
	if err != nil {
		return err
	}

	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return err
	}

	msg, err := json.Marshal(tx.scillaCoreInfo)
	if err != nil {
		return err
	}

	digest := sha256.Sum256(msg)
	if !sig.Verify(digest[:], pub) {
		return errors.New("invalid signature")
	}

	return nil
}
