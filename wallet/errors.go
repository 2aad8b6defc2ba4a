package wallet

import (
	"errors"
	"fmt"

	"github.com/nutsack/nutsack/cashu"
)

var (
	ErrExactCombinationNotFound = errors.New("no combination of proofs matches the amount exactly")
	ErrUntrustedMint            = errors.New("mint is not in the wallet's mint list")
	ErrNoActiveKeyset           = errors.New("mint has no active keyset for the unit")
	ErrSwapRejected             = errors.New("mint rejected the swap")
	ErrConfig                   = errors.New("invalid wallet configuration")
	ErrMeltFailed               = errors.New("invoice was not paid")
)

// TransportError is returned when the relays or a mint could not be reached.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CryptoError is returned for tokens or signatures that cannot be
// parsed or unblinded.
type CryptoError struct {
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto error: %v", e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

type InsufficientBalanceError struct {
	Needed    uint64
	Available uint64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: needed %d but only %d available", e.Needed, e.Available)
}

// UnsavedProofsError is returned when a mint issued new proofs to the
// wallet but they could not be stored on the relays. Token holds the
// proofs; redeeming it once the relays are back moves them into the
// wallet.
type UnsavedProofsError struct {
	Mint   string
	Unit   string
	Proofs cashu.Proofs
	Token  string
	Err    error
}

func (e *UnsavedProofsError) Error() string {
	return fmt.Sprintf("could not store %d %s of new proofs: %v", e.Proofs.Amount(), e.Unit, e.Err)
}

func (e *UnsavedProofsError) Unwrap() error {
	return e.Err
}

func unsavedProofs(mintURL, unit string, proofs cashu.Proofs, err error) error {
	unsaved := &UnsavedProofsError{Mint: mintURL, Unit: unit, Proofs: proofs, Err: err}
	if tokenUnit, parseErr := cashu.ParseUnit(unit); parseErr == nil {
		unsaved.Token, _ = serializeToken(proofs, mintURL, tokenUnit, "")
	}
	return unsaved
}
