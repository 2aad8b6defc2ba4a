// Package testutils runs an in-process mint for tests. It signs,
// verifies and invalidates proofs with real BDHKE but keeps all of
// its state in memory.
package testutils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"
	"github.com/nutsack/nutsack/cashu"
	"github.com/nutsack/nutsack/cashu/nuts/nut04"
	"github.com/nutsack/nutsack/cashu/nuts/nut05"
	"github.com/nutsack/nutsack/crypto"
	decodepay "github.com/nbd-wtf/ln-decodepay"
)

const QuoteExpiryMins = 10

type mintQuote struct {
	Id      string
	Request string
	Amount  uint64
	Unit    string
	State   nut04.State
	Expiry  int64
}

type meltQuote struct {
	Id         string
	Request    string
	Amount     uint64
	FeeReserve uint64
	Unit       string
	State      nut05.State
	Preimage   string
	Expiry     int64
}

type Mint struct {
	server *httptest.Server

	mu         sync.Mutex
	keysets    map[string]*crypto.MintKeyset
	keysetIds  []string
	spent      map[string]bool
	signed     map[string]cashu.BlindedSignature
	mintQuotes map[string]*mintQuote
	meltQuotes map[string]*meltQuote
	feeReserve uint64
	swapErr    error
	meltErr    error
	requests   map[string]int
}

// NewMint starts a mint with one active keyset for the unit.
func NewMint(unit string, inputFeePpk uint) *Mint {
	m := &Mint{
		keysets:    make(map[string]*crypto.MintKeyset),
		spent:      make(map[string]bool),
		signed:     make(map[string]cashu.BlindedSignature),
		mintQuotes: make(map[string]*mintQuote),
		meltQuotes: make(map[string]*meltQuote),
		requests:   make(map[string]int),
	}
	m.AddKeyset(unit, inputFeePpk)
	m.server = httptest.NewServer(m.router())
	return m
}

func (m *Mint) URL() string {
	return m.server.URL
}

func (m *Mint) Close() {
	m.server.Close()
}

// AddKeyset adds an active keyset and returns its id.
func (m *Mint) AddKeyset(unit string, inputFeePpk uint) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	seed := make([]byte, 32)
	rand.Read(seed)
	derivationPath := strconv.Itoa(len(m.keysetIds))
	keyset := crypto.GenerateKeyset(hex.EncodeToString(seed), derivationPath, unit, inputFeePpk)
	m.keysets[keyset.Id] = keyset
	m.keysetIds = append(m.keysetIds, keyset.Id)
	return keyset.Id
}

// DeactivateKeysets marks every keyset of the unit as inactive.
func (m *Mint) DeactivateKeysets(unit string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, keyset := range m.keysets {
		if keyset.Unit == unit {
			keyset.Active = false
		}
	}
}

func (m *Mint) ActiveKeyset(unit string) *crypto.MintKeyset {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeKeyset(unit)
}

func (m *Mint) activeKeyset(unit string) *crypto.MintKeyset {
	for _, id := range m.keysetIds {
		if keyset := m.keysets[id]; keyset.Active && keyset.Unit == unit {
			return keyset
		}
	}
	return nil
}

// SetSwapFailure makes swaps fail with err until called with nil.
// A cashu.Error is returned to clients as a 400.
func (m *Mint) SetSwapFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swapErr = err
}

func (m *Mint) SetMeltFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meltErr = err
}

func (m *Mint) SetFeeReserve(fee uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeReserve = fee
}

// Requests returns how many times the path was requested.
func (m *Mint) Requests(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[path]
}

// PayQuote simulates the payment of the invoice of a mint quote.
func (m *Mint) PayQuote(quoteId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	quote, ok := m.mintQuotes[quoteId]
	if !ok {
		return errors.New("quote does not exist")
	}
	if quote.State == nut04.Unpaid {
		quote.State = nut04.Paid
	}
	return nil
}

// IssueProofs creates valid proofs from the active keyset of the unit
// as if they had been minted by some other wallet.
func (m *Mint) IssueProofs(amount uint64, unit string) (cashu.Proofs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keyset := m.activeKeyset(unit)
	if keyset == nil {
		return nil, fmt.Errorf("no active keyset for unit %v", unit)
	}

	proofs := make(cashu.Proofs, 0)
	for _, denomination := range cashu.AmountSplit(amount) {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return nil, err
		}
		secret := hex.EncodeToString(secretBytes)

		r, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		B_, r, err := crypto.BlindMessage([]byte(secret), r.Serialize())
		if err != nil {
			return nil, err
		}

		key := keyset.Keys[denomination]
		C_ := crypto.SignBlindedMessage(B_, key.PrivateKey)
		C := crypto.UnblindSignature(C_, r, key.PublicKey)

		proofs = append(proofs, cashu.Proof{
			Amount: denomination,
			Id:     keyset.Id,
			Secret: secret,
			C:      hex.EncodeToString(C.SerializeCompressed()),
		})
	}
	return proofs, nil
}

func (m *Mint) IsSpent(proof cashu.Proof) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spent[proof.Secret]
}

// Spend invalidates the proofs as if another wallet had swapped them.
func (m *Mint) Spend(proofs cashu.Proofs) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, proof := range proofs {
		m.spent[proof.Secret] = true
	}
}

func (m *Mint) requestMintQuote(amount uint64, unit string) (*mintQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeKeyset(unit) == nil {
		return nil, cashu.UnitNotSupportedErr
	}
	if amount == 0 {
		return nil, cashu.BuildCashuError("amount must be greater than zero", cashu.StandardErrCode)
	}

	request, err := CreateFakeInvoice(amount)
	if err != nil {
		return nil, cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
	}

	quote := &mintQuote{
		Id:      uuid.NewString(),
		Request: request,
		Amount:  amount,
		Unit:    unit,
		State:   nut04.Unpaid,
		Expiry:  time.Now().Add(time.Minute * QuoteExpiryMins).Unix(),
	}
	m.mintQuotes[quote.Id] = quote
	return quote, nil
}

func (m *Mint) getMintQuote(quoteId string) (mintQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	quote, ok := m.mintQuotes[quoteId]
	if !ok {
		return mintQuote{}, cashu.QuoteNotExistErr
	}
	return *quote, nil
}

func (m *Mint) mintTokens(quoteId string, blindedMessages cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	quote, ok := m.mintQuotes[quoteId]
	if !ok {
		return nil, cashu.QuoteNotExistErr
	}
	switch quote.State {
	case nut04.Unpaid:
		return nil, cashu.MintQuoteRequestNotPaid
	case nut04.Issued:
		return nil, cashu.MintQuoteAlreadyIssued
	}

	if blindedMessages.Amount() > quote.Amount {
		return nil, cashu.BuildCashuError("sum of the outputs is greater than quote amount", cashu.StandardErrCode)
	}

	blindedSignatures, err := m.signBlindedMessages(blindedMessages)
	if err != nil {
		return nil, err
	}
	quote.State = nut04.Issued
	return blindedSignatures, nil
}

// swap verifies the proofs, signs the outputs and invalidates the proofs.
func (m *Mint) swap(proofs cashu.Proofs, blindedMessages cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.swapErr != nil {
		return nil, m.swapErr
	}

	if err := m.verifyProofs(proofs); err != nil {
		return nil, err
	}

	fees := m.transactionFees(proofs)
	if proofs.Amount() < fees || proofs.Amount()-fees != blindedMessages.Amount() {
		return nil, cashu.InsufficientProofsAmount
	}

	blindedSignatures, err := m.signBlindedMessages(blindedMessages)
	if err != nil {
		return nil, err
	}

	for _, proof := range proofs {
		m.spent[proof.Secret] = true
	}
	return blindedSignatures, nil
}

func (m *Mint) requestMeltQuote(request, unit string) (*meltQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeKeyset(unit) == nil {
		return nil, cashu.UnitNotSupportedErr
	}

	bolt11, err := decodepay.Decodepay(request)
	if err != nil {
		return nil, cashu.BuildCashuError(fmt.Sprintf("invalid invoice: %v", err), cashu.MeltQuoteErrCode)
	}

	quote := &meltQuote{
		Id:         uuid.NewString(),
		Request:    request,
		Amount:     uint64(bolt11.MSatoshi) / 1000,
		FeeReserve: m.feeReserve,
		Unit:       unit,
		State:      nut05.Unpaid,
		Expiry:     time.Now().Add(time.Minute * QuoteExpiryMins).Unix(),
	}
	m.meltQuotes[quote.Id] = quote
	return quote, nil
}

func (m *Mint) getMeltQuote(quoteId string) (meltQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	quote, ok := m.meltQuotes[quoteId]
	if !ok {
		return meltQuote{}, cashu.QuoteNotExistErr
	}
	return *quote, nil
}

func (m *Mint) meltTokens(quoteId string, proofs cashu.Proofs) (meltQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	quote, ok := m.meltQuotes[quoteId]
	if !ok {
		return meltQuote{}, cashu.QuoteNotExistErr
	}
	if quote.State == nut05.Paid {
		return meltQuote{}, cashu.MeltQuoteAlreadyPaid
	}

	if err := m.verifyProofs(proofs); err != nil {
		return meltQuote{}, err
	}
	fees := m.transactionFees(proofs)
	if proofs.Amount() < quote.Amount+quote.FeeReserve+fees {
		return meltQuote{}, cashu.InsufficientProofsAmount
	}

	if m.meltErr != nil {
		return meltQuote{}, m.meltErr
	}

	for _, proof := range proofs {
		m.spent[proof.Secret] = true
	}
	quote.State = nut05.Paid
	quote.Preimage = FakePreimage
	return *quote, nil
}

// proofStates returns whether the proof for each Y is spent.
func (m *Mint) proofStates(Ys []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	spentYs := make(map[string]bool, len(m.spent))
	for secret := range m.spent {
		Y, err := crypto.HashToCurve([]byte(secret))
		if err != nil {
			return nil, err
		}
		spentYs[hex.EncodeToString(Y.SerializeCompressed())] = true
	}

	states := make(map[string]bool, len(Ys))
	for _, Y := range Ys {
		states[Y] = spentYs[Y]
	}
	return states, nil
}

func (m *Mint) restore(blindedMessages cashu.BlindedMessages) (cashu.BlindedMessages, cashu.BlindedSignatures) {
	m.mu.Lock()
	defer m.mu.Unlock()

	outputs := make(cashu.BlindedMessages, 0)
	signatures := make(cashu.BlindedSignatures, 0)
	for _, msg := range blindedMessages {
		if signature, ok := m.signed[msg.B_]; ok {
			outputs = append(outputs, msg)
			signatures = append(signatures, signature)
		}
	}
	return outputs, signatures
}

func (m *Mint) verifyProofs(proofs cashu.Proofs) error {
	if len(proofs) == 0 {
		return cashu.NoProofsProvided
	}
	if cashu.CheckDuplicateProofs(proofs) {
		return cashu.DuplicateProofs
	}

	for _, proof := range proofs {
		// if the secret was seen before, the proof was already used
		if m.spent[proof.Secret] {
			return cashu.ProofAlreadyUsedErr
		}

		keyset, ok := m.keysets[proof.Id]
		if !ok {
			return cashu.UnknownKeysetErr
		}
		key, ok := keyset.Keys[proof.Amount]
		if !ok {
			return cashu.InvalidProofErr
		}

		Cbytes, err := hex.DecodeString(proof.C)
		if err != nil {
			return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
		}
		C, err := secp256k1.ParsePubKey(Cbytes)
		if err != nil {
			return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
		}

		if !crypto.Verify([]byte(proof.Secret), key.PrivateKey, C) {
			return cashu.InvalidProofErr
		}
	}
	return nil
}

// signBlindedMessages will sign the blindedMessages and
// return the blindedSignatures
func (m *Mint) signBlindedMessages(blindedMessages cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	blindedSignatures := make(cashu.BlindedSignatures, len(blindedMessages))

	for i, msg := range blindedMessages {
		if _, ok := m.signed[msg.B_]; ok {
			return nil, cashu.BlindedMessageAlreadySigned
		}

		keyset, ok := m.keysets[msg.Id]
		if !ok {
			return nil, cashu.UnknownKeysetErr
		}
		if !keyset.Active {
			return nil, cashu.InactiveKeysetSignatureRequest
		}
		key, ok := keyset.Keys[msg.Amount]
		if !ok {
			return nil, cashu.InvalidBlindedMessageAmount
		}

		B_bytes, err := hex.DecodeString(msg.B_)
		if err != nil {
			return nil, cashu.StandardErr
		}
		B_, err := secp256k1.ParsePubKey(B_bytes)
		if err != nil {
			return nil, cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
		}

		C_ := crypto.SignBlindedMessage(B_, key.PrivateKey)
		blindedSignatures[i] = cashu.BlindedSignature{
			Amount: msg.Amount,
			C_:     hex.EncodeToString(C_.SerializeCompressed()),
			Id:     keyset.Id,
		}
	}

	for i, msg := range blindedMessages {
		m.signed[msg.B_] = blindedSignatures[i]
	}
	return blindedSignatures, nil
}

func (m *Mint) transactionFees(proofs cashu.Proofs) uint64 {
	var fees uint
	for _, proof := range proofs {
		if keyset, ok := m.keysets[proof.Id]; ok {
			fees += keyset.InputFeePpk
		}
	}
	return uint64((fees + 999) / 1000)
}
