package keychain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pandodao/wallet-core/core"
)

const (
	scillaHRP     = "zil"
	scillaAddrLen = 20
)

// Address renders the account address of pub for the chain kind.
func Address(kind core.ChainKind, pub *btcec.PublicKey) (string, error) {
	switch kind {
	case core.ChainKindEVM:
		return evmAddress(pub).Hex(), nil
	case core.ChainKindScilla:
		return EncodeScillaAddress(scillaAddressBytes(pub))
	default:
		return "", core.AddressError(fmt.Errorf("unsupported chain kind %s", kind))
	}
}

func evmAddress(pub *btcec.PublicKey) common.Address {
	ecdsaPub, err := crypto.DecompressPubkey(pub.SerializeCompressed())
	if err != nil {
		return common.Address{}
	}

	return crypto.PubkeyToAddress(*ecdsaPub)
}

func scillaAddressBytes(pub *btcec.PublicKey) []byte {
	sum := sha256.Sum256(pub.SerializeCompressed())
	return sum[len(sum)-scillaAddrLen:]
}

func EncodeScillaAddress(b []byte) (string, error) {
	if len(b) != scillaAddrLen {
		return "", core.AddressError(fmt.Errorf("want %d bytes, got %d", scillaAddrLen, len(b)))
	}

	conv, err := bech32.ConvertBits(b, 8, 5, true)
	if err != nil {
		return "", core.AddressError(err)
	}

	addr, err := bech32.Encode(scillaHRP, conv)
	if err != nil {
		return "", core.AddressError(err)
	}

	return addr, nil
}

// DecodeScillaAddress accepts a bech32 zil1 address or 40 hex characters.
func DecodeScillaAddress(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), scillaHRP+"1") {
		hrp, data, err := bech32.Decode(s)
		if err != nil {
			return nil, core.AddressError(err)
		}

		if hrp != scillaHRP {
			return nil, core.AddressError(fmt.Errorf("unexpected prefix %q", hrp))
		}

		b, err := bech32.ConvertBits(data, 5, 8, false)
		if err != nil {
			return nil, core.AddressError(err)
		}

		if len(b) != scillaAddrLen {
			return nil, core.AddressError(fmt.Errorf("want %d bytes, got %d", scillaAddrLen, len(b)))
		}

		return b, nil
	}

	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil || len(b) != scillaAddrLen {
		return nil, core.AddressError(errors.New("malformed scilla address"))
	}

	return b, nil
}

// ParseAddress validates s for the chain kind and returns its canonical
// form: checksummed hex for EVM, bech32 for Scilla.
func ParseAddress(kind core.ChainKind, s string) (string, error) {
	switch kind {
	case core.ChainKindEVM:
		if !common.IsHexAddress(s) {
			return "", core.AddressError(errors.New("malformed evm address"))
		}
		return common.HexToAddress(s).Hex(), nil
	case core.ChainKindScilla:
		b, err := DecodeScillaAddress(s)
		if err != nil {
			return "", err
		}
		return EncodeScillaAddress(b)
	default:
		return "", core.AddressError(fmt.Errorf("unsupported chain kind %s", kind))
	}
}

// ScillaBase16 is the lowercase hex form used in Scilla payloads.
func ScillaBase16(s string) (string, error) {
	b, err := DecodeScillaAddress(s)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
