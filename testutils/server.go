package testutils

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nutsack/nutsack/cashu"
	"github.com/nutsack/nutsack/cashu/nuts/nut01"
	"github.com/nutsack/nutsack/cashu/nuts/nut02"
	"github.com/nutsack/nutsack/cashu/nuts/nut03"
	"github.com/nutsack/nutsack/cashu/nuts/nut04"
	"github.com/nutsack/nutsack/cashu/nuts/nut05"
	"github.com/nutsack/nutsack/cashu/nuts/nut06"
	"github.com/nutsack/nutsack/cashu/nuts/nut07"
	"github.com/nutsack/nutsack/cashu/nuts/nut09"
)

func (m *Mint) router() http.Handler {
	r := mux.NewRouter()
	r.Use(m.countRequests)

	r.HandleFunc("/v1/info", m.handleInfo).Methods(http.MethodGet)
	r.HandleFunc("/v1/keys", m.handleActiveKeysets).Methods(http.MethodGet)
	r.HandleFunc("/v1/keys/{id}", m.handleKeysetById).Methods(http.MethodGet)
	r.HandleFunc("/v1/keysets", m.handleKeysets).Methods(http.MethodGet)
	r.HandleFunc("/v1/swap", m.handleSwap).Methods(http.MethodPost)
	r.HandleFunc("/v1/mint/quote/bolt11", m.handleMintQuote).Methods(http.MethodPost)
	r.HandleFunc("/v1/mint/quote/bolt11/{quote_id}", m.handleMintQuoteState).Methods(http.MethodGet)
	r.HandleFunc("/v1/mint/bolt11", m.handleMint).Methods(http.MethodPost)
	r.HandleFunc("/v1/melt/quote/bolt11", m.handleMeltQuote).Methods(http.MethodPost)
	r.HandleFunc("/v1/melt/quote/bolt11/{quote_id}", m.handleMeltQuoteState).Methods(http.MethodGet)
	r.HandleFunc("/v1/melt/bolt11", m.handleMelt).Methods(http.MethodPost)
	r.HandleFunc("/v1/checkstate", m.handleCheckState).Methods(http.MethodPost)
	r.HandleFunc("/v1/restore", m.handleRestore).Methods(http.MethodPost)

	return r
}

func (m *Mint) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		m.mu.Lock()
		m.requests[req.URL.Path]++
		m.mu.Unlock()
		next.ServeHTTP(rw, req)
	})
}

func writeResponse(rw http.ResponseWriter, response any) {
	rw.Header().Set("Content-Type", "application/json")
	jsonRes, err := json.Marshal(response)
	if err != nil {
		writeErr(rw, cashu.StandardErr)
		return
	}
	rw.Write(jsonRes)
}

func writeErr(rw http.ResponseWriter, err error) {
	var cashuErr cashu.Error
	var cashuErrPtr *cashu.Error
	switch {
	case errors.As(err, &cashuErrPtr):
		cashuErr = *cashuErrPtr
	case errors.As(err, &cashuErr):
	default:
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(rw).Encode(cashuErr)
}

func decodeJsonReqBody(req *http.Request, dst any) error {
	if req.Body == nil || req.ContentLength == 0 {
		return cashu.EmptyBodyErr
	}
	if err := json.NewDecoder(req.Body).Decode(dst); err != nil {
		return cashu.BuildCashuError("bad request: "+err.Error(), cashu.StandardErrCode)
	}
	return nil
}

func (m *Mint) handleInfo(rw http.ResponseWriter, req *http.Request) {
	m.mu.Lock()
	methods := make([]nut06.MethodSetting, 0)
	seen := make(map[string]bool)
	for _, id := range m.keysetIds {
		unit := m.keysets[id].Unit
		if !seen[unit] {
			seen[unit] = true
			methods = append(methods, nut06.MethodSetting{Method: cashu.BOLT11_METHOD, Unit: unit})
		}
	}
	m.mu.Unlock()

	writeResponse(rw, nut06.MintInfo{
		Name:        "test mint",
		Version:     "nutsack/test",
		Description: "in-process mint for tests",
		Nuts: nut06.Nuts{
			Nut04: nut06.NutSetting{Methods: methods},
			Nut05: nut06.NutSetting{Methods: methods},
			Nut07: nut06.Supported{Supported: true},
			Nut09: nut06.Supported{Supported: true},
		},
	})
}

func (m *Mint) keysResponse(active bool, id string) nut01.GetKeysResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	keysets := make([]nut01.Keyset, 0)
	for _, keysetId := range m.keysetIds {
		keyset := m.keysets[keysetId]
		if (active && !keyset.Active) || (id != "" && id != keyset.Id) {
			continue
		}
		keysets = append(keysets, nut01.Keyset{Id: keyset.Id, Unit: keyset.Unit, Keys: keyset.DerivePublic()})
	}
	return nut01.GetKeysResponse{Keysets: keysets}
}

func (m *Mint) handleActiveKeysets(rw http.ResponseWriter, req *http.Request) {
	writeResponse(rw, m.keysResponse(true, ""))
}

func (m *Mint) handleKeysetById(rw http.ResponseWriter, req *http.Request) {
	response := m.keysResponse(false, mux.Vars(req)["id"])
	if len(response.Keysets) == 0 {
		writeErr(rw, cashu.UnknownKeysetErr)
		return
	}
	writeResponse(rw, response)
}

func (m *Mint) handleKeysets(rw http.ResponseWriter, req *http.Request) {
	m.mu.Lock()
	keysets := make([]nut02.Keyset, 0, len(m.keysetIds))
	for _, id := range m.keysetIds {
		keyset := m.keysets[id]
		keysets = append(keysets, nut02.Keyset{
			Id:          keyset.Id,
			Unit:        keyset.Unit,
			Active:      keyset.Active,
			InputFeePpk: keyset.InputFeePpk,
		})
	}
	m.mu.Unlock()

	writeResponse(rw, nut02.GetKeysetsResponse{Keysets: keysets})
}

func (m *Mint) handleSwap(rw http.ResponseWriter, req *http.Request) {
	var swapReq nut03.PostSwapRequest
	if err := decodeJsonReqBody(req, &swapReq); err != nil {
		writeErr(rw, err)
		return
	}

	signatures, err := m.swap(swapReq.Inputs, swapReq.Outputs)
	if err != nil {
		writeErr(rw, err)
		return
	}
	writeResponse(rw, nut03.PostSwapResponse{Signatures: signatures})
}

func (m *Mint) handleMintQuote(rw http.ResponseWriter, req *http.Request) {
	var quoteReq nut04.PostMintQuoteBolt11Request
	if err := decodeJsonReqBody(req, &quoteReq); err != nil {
		writeErr(rw, err)
		return
	}

	quote, err := m.requestMintQuote(quoteReq.Amount, quoteReq.Unit)
	if err != nil {
		writeErr(rw, err)
		return
	}
	writeResponse(rw, mintQuoteResponse(*quote))
}

func (m *Mint) handleMintQuoteState(rw http.ResponseWriter, req *http.Request) {
	quote, err := m.getMintQuote(mux.Vars(req)["quote_id"])
	if err != nil {
		writeErr(rw, err)
		return
	}
	writeResponse(rw, mintQuoteResponse(quote))
}

func mintQuoteResponse(quote mintQuote) nut04.PostMintQuoteBolt11Response {
	return nut04.PostMintQuoteBolt11Response{
		Quote:   quote.Id,
		Request: quote.Request,
		State:   quote.State.String(),
		Expiry:  quote.Expiry,
	}
}

func (m *Mint) handleMint(rw http.ResponseWriter, req *http.Request) {
	var mintReq nut04.PostMintBolt11Request
	if err := decodeJsonReqBody(req, &mintReq); err != nil {
		writeErr(rw, err)
		return
	}

	signatures, err := m.mintTokens(mintReq.Quote, mintReq.Outputs)
	if err != nil {
		writeErr(rw, err)
		return
	}
	writeResponse(rw, nut04.PostMintBolt11Response{Signatures: signatures})
}

func (m *Mint) handleMeltQuote(rw http.ResponseWriter, req *http.Request) {
	var quoteReq nut05.PostMeltQuoteBolt11Request
	if err := decodeJsonReqBody(req, &quoteReq); err != nil {
		writeErr(rw, err)
		return
	}

	quote, err := m.requestMeltQuote(quoteReq.Request, quoteReq.Unit)
	if err != nil {
		writeErr(rw, err)
		return
	}
	writeResponse(rw, meltQuoteResponse(*quote))
}

func (m *Mint) handleMeltQuoteState(rw http.ResponseWriter, req *http.Request) {
	quote, err := m.getMeltQuote(mux.Vars(req)["quote_id"])
	if err != nil {
		writeErr(rw, err)
		return
	}
	writeResponse(rw, meltQuoteResponse(quote))
}

func meltQuoteResponse(quote meltQuote) nut05.PostMeltQuoteBolt11Response {
	return nut05.PostMeltQuoteBolt11Response{
		Quote:      quote.Id,
		Amount:     quote.Amount,
		FeeReserve: quote.FeeReserve,
		State:      quote.State.String(),
		Expiry:     quote.Expiry,
		Preimage:   quote.Preimage,
	}
}

func (m *Mint) handleMelt(rw http.ResponseWriter, req *http.Request) {
	var meltReq nut05.PostMeltBolt11Request
	if err := decodeJsonReqBody(req, &meltReq); err != nil {
		writeErr(rw, err)
		return
	}

	quote, err := m.meltTokens(meltReq.Quote, meltReq.Inputs)
	if err != nil {
		writeErr(rw, err)
		return
	}
	writeResponse(rw, meltQuoteResponse(quote))
}

func (m *Mint) handleCheckState(rw http.ResponseWriter, req *http.Request) {
	var stateReq nut07.PostCheckStateRequest
	if err := decodeJsonReqBody(req, &stateReq); err != nil {
		writeErr(rw, err)
		return
	}

	spent, err := m.proofStates(stateReq.Ys)
	if err != nil {
		writeErr(rw, cashu.BuildCashuError(err.Error(), cashu.StandardErrCode))
		return
	}

	states := make([]nut07.ProofState, len(stateReq.Ys))
	for i, Y := range stateReq.Ys {
		if _, err := hex.DecodeString(Y); err != nil {
			writeErr(rw, cashu.BuildCashuError("invalid Y", cashu.StandardErrCode))
			return
		}
		state := nut07.Unspent
		if spent[Y] {
			state = nut07.Spent
		}
		states[i] = nut07.ProofState{Y: Y, State: state}
	}
	writeResponse(rw, nut07.PostCheckStateResponse{States: states})
}

func (m *Mint) handleRestore(rw http.ResponseWriter, req *http.Request) {
	var restoreReq nut09.PostRestoreRequest
	if err := decodeJsonReqBody(req, &restoreReq); err != nil {
		writeErr(rw, err)
		return
	}

	outputs, signatures := m.restore(restoreReq.Outputs)
	writeResponse(rw, nut09.PostRestoreResponse{Outputs: outputs, Signatures: signatures})
}
