package core

import (
	"errors"
	"fmt"
)

type ErrorKind uint8

const (
	_ ErrorKind = iota
	ErrorKindNotRunning
	ErrorKindAlreadyRunning
	ErrorKindCoreAccess
	ErrorKindWalletAccess
	ErrorKindAccountAccess
	ErrorKindDecodeSession
	ErrorKindInvalidSecretMaterial
	ErrorKindBackground
	ErrorKindTransaction
	ErrorKindAddress
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNotRunning:
		return "NotRunning"
	case ErrorKindAlreadyRunning:
		return "AlreadyRunning"
	case ErrorKindCoreAccess:
		return "CoreAccess"
	case ErrorKindWalletAccess:
		return "WalletAccess"
	case ErrorKindAccountAccess:
		return "AccountAccess"
	case ErrorKindDecodeSession:
		return "DecodeSession"
	case ErrorKindInvalidSecretMaterial:
		return "InvalidSecretMaterial"
	case ErrorKindBackground:
		return "BackgroundError"
	case ErrorKindTransaction:
		return "TransactionError"
	case ErrorKindAddress:
		return "AddressError"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// Public reasons. These are the only cause messages Message will render.
var (
	ErrTokenNotExists      = errors.New("token does not exist")
	ErrInvalidAccountIndex = errors.New("invalid account index")
	ErrInvalidTxHash       = errors.New("broadcast returned no transaction hash")
	ErrInvalidPayload      = errors.New("transaction request must carry exactly one of scilla or evm payload")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrMissingNonce        = errors.New("transaction nonce or gas is not set")
	ErrLedgerSigning       = errors.New("ledger wallets must sign on the device")
	ErrPasswordLocked      = errors.New("password attempts are temporarily locked")
	ErrInvalidPassword     = errors.New("invalid password")
	ErrPasswordRequired    = errors.New("password is required")
	ErrSessionExpired      = errors.New("session expired")
	ErrInvalidSession      = errors.New("invalid session")
	ErrDeviceMismatch      = errors.New("device identifiers do not match the enrolled set")
	ErrInvalidMnemonic     = errors.New("invalid mnemonic")
	ErrChainNotFound       = errors.New("chain provider not found")
	ErrUnsupportedWallet   = errors.New("unsupported wallet parameters")
	ErrNotRecorded         = errors.New("transaction was broadcast but not recorded")
	ErrInvalidSettings     = errors.New("session ttl must be positive")
)

// publicReasons is in match order; outer reasons come first.
var publicReasons = []error{
	ErrNotRecorded,
	ErrTokenNotExists,
	ErrInvalidAccountIndex,
	ErrInvalidTxHash,
	ErrInvalidPayload,
	ErrInvalidAmount,
	ErrMissingNonce,
	ErrLedgerSigning,
	ErrPasswordLocked,
	ErrInvalidPassword,
	ErrPasswordRequired,
	ErrSessionExpired,
	ErrInvalidSession,
	ErrDeviceMismatch,
	ErrInvalidMnemonic,
	ErrChainNotFound,
	ErrUnsupportedWallet,
	ErrInvalidSettings,
}

// Error is the single error type crossing package boundaries. Two errors
// are equal under errors.Is when their kinds match.
type Error struct {
	Kind         ErrorKind
	WalletIndex  int
	AccountIndex int
	Err          error
}

var (
	ErrNotRunning            = &Error{Kind: ErrorKindNotRunning}
	ErrAlreadyRunning        = &Error{Kind: ErrorKindAlreadyRunning}
	ErrCoreAccess            = &Error{Kind: ErrorKindCoreAccess}
	ErrWalletAccess          = &Error{Kind: ErrorKindWalletAccess}
	ErrAccountAccess         = &Error{Kind: ErrorKindAccountAccess}
	ErrDecodeSession         = &Error{Kind: ErrorKindDecodeSession}
	ErrInvalidSecretMaterial = &Error{Kind: ErrorKindInvalidSecretMaterial}
	ErrBackground            = &Error{Kind: ErrorKindBackground}
	ErrTransaction           = &Error{Kind: ErrorKindTransaction}
	ErrAddress               = &Error{Kind: ErrorKindAddress}
)

func (e *Error) Error() string {
	msg := e.describe()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) describe() string {
	switch e.Kind {
	case ErrorKindNotRunning:
		return "service is not running"
	case ErrorKindAlreadyRunning:
		return "service is already running"
	case ErrorKindCoreAccess:
		return "exclusive access to the service is unavailable"
	case ErrorKindWalletAccess:
		return fmt.Sprintf("fail to get access to wallet at index %d", e.WalletIndex)
	case ErrorKindAccountAccess:
		return fmt.Sprintf("fail to get access to account %d of wallet %d", e.AccountIndex, e.WalletIndex)
	case ErrorKindDecodeSession:
		return "fail to decode session"
	case ErrorKindInvalidSecretMaterial:
		return "invalid secret key material"
	case ErrorKindBackground:
		return "wallet service error"
	case ErrorKindTransaction:
		return "transaction error"
	case ErrorKindAddress:
		return "invalid address"
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind
}

func newError(kind ErrorKind, err error) error {
	return &Error{Kind: kind, Err: err}
}

func WalletAccessError(walletIndex int) error {
	return &Error{Kind: ErrorKindWalletAccess, WalletIndex: walletIndex}
}

func AccountAccessError(accountIndex, walletIndex int) error {
	return &Error{Kind: ErrorKindAccountAccess, WalletIndex: walletIndex, AccountIndex: accountIndex}
}

func CoreAccessError(err error) error {
	return newError(ErrorKindCoreAccess, err)
}

func DecodeSessionError(err error) error {
	return newError(ErrorKindDecodeSession, err)
}

func InvalidSecretMaterialError(err error) error {
	return newError(ErrorKindInvalidSecretMaterial, err)
}

// BackgroundError wraps an opaque failure of the wallet service. Errors
// already in the taxonomy pass through unchanged.
func BackgroundError(err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	return newError(ErrorKindBackground, err)
}

func TransactionError(err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	return newError(ErrorKindTransaction, err)
}

// NotRecordedError reports a broadcast transaction whose history record
// could not be written. Both ErrNotRecorded and err stay matchable.
func NotRecordedError(err error) error {
	return newError(ErrorKindTransaction, fmt.Errorf("%w: %w", ErrNotRecorded, err))
}

func AddressError(err error) error {
	return newError(ErrorKindAddress, err)
}

// KindOf reports the taxonomy kind of err, or zero if err is outside it.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return 0
}

// Message renders err for the outermost boundary. Causes are only shown
// when they are one of the public reasons.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}

	msg := e.describe()
	for _, reason := range publicReasons {
		if errors.Is(err, reason) {
			return msg + ": " + reason.Error()
		}
	}

	return msg
}
