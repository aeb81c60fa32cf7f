package keychain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pandodao/wallet-core/core"
	"github.com/tyler-smith/go-bip39"
)

const (
	purpose = 44

	MnemonicEntropyBits = 128
)

// GenerateMnemonic creates a new 12 word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}

	return mnemonic, nil
}

func ValidateMnemonic(mnemonic string) error {
	if !bip39.IsMnemonicValid(strings.TrimSpace(mnemonic)) {
		return core.ErrInvalidMnemonic
	}

	return nil
}

// DeriveMnemonicKey derives m/44'/slip44'/0'/0/index from a mnemonic and
// an optional passphrase.
func DeriveMnemonicKey(mnemonic, passphrase string, slip44, index uint32) (*btcec.PrivateKey, error) {
	seed, err := bip39.NewSeedWithErrorChecking(strings.TrimSpace(mnemonic), passphrase)
	if err != nil {
		return nil, core.ErrInvalidMnemonic
	}
	defer clear(seed)

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + purpose,
		hdkeychain.HardenedKeyStart + slip44,
		hdkeychain.HardenedKeyStart,
		0,
		index,
	}

	for _, i := range path {
		if key, err = key.Derive(i); err != nil {
			return nil, fmt.Errorf("derive %d: %w", i, err)
		}
	}

	return key.ECPrivKey()
}

// ParseSecretKey accepts a 32 byte hex key with or without a 0x prefix.
func ParseSecretKey(s string) (*btcec.PrivateKey, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, core.InvalidSecretMaterialError(err)
	}
	defer clear(b)

	if len(b) != btcec.PrivKeyBytesLen {
		return nil, core.InvalidSecretMaterialError(fmt.Errorf("want %d bytes, got %d", btcec.PrivKeyBytesLen, len(b)))
	}

	var scalar btcec.ModNScalar
	if overflow := scalar.SetByteSlice(b); overflow || scalar.IsZero() {
		return nil, core.InvalidSecretMaterialError(errors.New("key out of range"))
	}

	key, _ := btcec.PrivKeyFromBytes(b)
	return key, nil
}

// ParsePublicKey accepts a compressed or uncompressed secp256k1 key.
func ParsePublicKey(b []byte) (*btcec.PublicKey, error) {
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, core.InvalidSecretMaterialError(err)
	}

	return pub, nil
}

// Derive returns the account key for a wallet secret: a mnemonic for
// phrase wallets or a hex key for key wallets.
func Derive(kind core.WalletKind, secret []byte, passphrase string, slip44, index uint32) (*btcec.PrivateKey, error) {
	switch kind {
	case core.WalletKindSecretPhrase:
		return DeriveMnemonicKey(string(secret), passphrase, slip44, index)
	case core.WalletKindSecretKey:
		return ParseSecretKey(string(secret))
	case core.WalletKindLedger:
		return nil, core.ErrLedgerSigning
	default:
		return nil, core.ErrUnsupportedWallet
	}
}
