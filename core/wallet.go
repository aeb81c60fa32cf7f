package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type ChainKind uint8

const (
	_ ChainKind = iota
	ChainKindScilla
	ChainKindEVM
)

func (k ChainKind) String() string {
	switch k {
	case ChainKindScilla:
		return "scilla"
	case ChainKindEVM:
		return "evm"
	default:
		return fmt.Sprintf("ChainKind(%d)", uint8(k))
	}
}

func (k ChainKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ChainKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "scilla":
		*k = ChainKindScilla
	case "evm":
		*k = ChainKindEVM
	default:
		return fmt.Errorf("unknown chain kind %q", b)
	}

	return nil
}

type WalletKind uint8

const (
	_ WalletKind = iota
	WalletKindSecretPhrase
	WalletKindSecretKey
	WalletKindLedger
)

func (k WalletKind) String() string {
	switch k {
	case WalletKindSecretPhrase:
		return "secret_phrase"
	case WalletKindSecretKey:
		return "secret_key"
	case WalletKindLedger:
		return "ledger"
	default:
		return fmt.Sprintf("WalletKind(%d)", uint8(k))
	}
}

func (k WalletKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *WalletKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "secret_phrase":
		*k = WalletKindSecretPhrase
	case "secret_key":
		*k = WalletKindSecretKey
	case "ledger":
		*k = WalletKindLedger
	default:
		return fmt.Errorf("unknown wallet kind %q", b)
	}

	return nil
}

// Provider is a network the service can talk to.
type Provider struct {
	ChainID  uint64    `json:"chain_id"`
	Name     string    `json:"name"`
	Kind     ChainKind `json:"kind"`
	RPC      []string  `json:"rpc"`
	Symbol   string    `json:"symbol"`
	Decimals uint8     `json:"decimals"`
	Slip44   uint32    `json:"slip44"`
	Explorer string    `json:"explorer,omitempty"`
}

type Settings struct {
	Theme         string        `json:"theme"`
	Notifications bool          `json:"notifications"`
	Locale        string        `json:"locale"`
	SessionTTL    time.Duration `json:"session_ttl"`
}

type WalletSettings struct {
	Currency string `json:"currency,omitempty"`
	// GasMultiplier is applied to estimated gas, in percent.
	GasMultiplier uint32 `json:"gas_multiplier,omitempty"`
}

type Account struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	PubKey  []byte `json:"pub_key"`
	Index   uint32 `json:"index"`
	ChainID uint64 `json:"chain_id"`
}

type Token struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Address  string `json:"address"`
	ChainID  uint64 `json:"chain_id"`
	Native   bool   `json:"native"`
	Logo     string `json:"logo,omitempty"`
	// Balances in base units, keyed by account index.
	Balances map[int]string `json:"balances,omitempty"`
}

type Wallet struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Kind            WalletKind     `json:"kind"`
	ChainID         uint64         `json:"chain_id"`
	Accounts        []*Account     `json:"accounts"`
	SelectedAccount int            `json:"selected_account"`
	Settings        WalletSettings `json:"settings"`
	Tokens          []*Token       `json:"tokens"`
	CreatedAt       time.Time      `json:"created_at"`

	// Credential material owned by the wallet service, never exposed.
	Vault         json.RawMessage `json:"-"`
	SessionSecret []byte          `json:"-"`
	Devices       []byte          `json:"-"`

	History []*HistoricalTransaction `json:"-"`
}

func (w *Wallet) Account(index int) (*Account, error) {
	if index < 0 || index >= len(w.Accounts) {
		return nil, ErrInvalidAccountIndex
	}

	return w.Accounts[index], nil
}

func (w *Wallet) Token(index int) (*Token, error) {
	if index < 0 || index >= len(w.Tokens) {
		return nil, ErrTokenNotExists
	}

	return w.Tokens[index], nil
}

// PreparedWallet is a derived and sealed wallet that is not yet persisted.
type PreparedWallet struct {
	Wallet *Wallet
	// Session is nil for watch-only wallets.
	Session []byte
	// Storage is the path of the instance that prepared it.
	Storage string
}

// WalletParams is implemented by Bip39Params, SKParams and LedgerParams only.
type WalletParams interface {
	walletParams()
	WalletKind() WalletKind
}

type AccountSpec struct {
	Index uint32 `json:"index"`
	Name  string `json:"name"`
}

type Bip39Params struct {
	Password   []byte
	Mnemonic   string
	Passphrase string
	WalletName string
	ChainID    uint64
	Accounts   []AccountSpec
	Devices    []string
	Settings   WalletSettings
}

type SKParams struct {
	Password   []byte
	SecretKey  string
	WalletName string
	ChainID    uint64
	Devices    []string
	Settings   WalletSettings
}

type LedgerParams struct {
	PubKeys    [][]byte
	WalletName string
	ChainID    uint64
	LedgerID   string
	Settings   WalletSettings
}

func (*Bip39Params) walletParams()  {}
func (*SKParams) walletParams()     {}
func (*LedgerParams) walletParams() {}

func (*Bip39Params) WalletKind() WalletKind  { return WalletKindSecretPhrase }
func (*SKParams) WalletKind() WalletKind     { return WalletKindSecretKey }
func (*LedgerParams) WalletKind() WalletKind { return WalletKindLedger }

// Unlock selects exactly one way of resolving a Seed.
type Unlock interface {
	unlock()
	DeviceIDs() []string
}

type PasswordUnlock struct {
	Password []byte
	Devices  []string
}

type SessionUnlock struct {
	Token   SessionToken
	Devices []string
}

func (*PasswordUnlock) unlock() {}
func (*SessionUnlock) unlock()  {}

func (u *PasswordUnlock) DeviceIDs() []string { return u.Devices }
func (u *SessionUnlock) DeviceIDs() []string  { return u.Devices }

type WalletStore interface {
	// List returns wallets in insertion order; the position is the wallet index.
	List(ctx context.Context) ([]*Wallet, error)
	Create(ctx context.Context, wallet *Wallet) error
	Update(ctx context.Context, wallet *Wallet) error
}
