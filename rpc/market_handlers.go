package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"novamarket/core"
	"novamarket/core/types"
	"novamarket/crypto"
	"novamarket/native/market"
)

const (
	codeMarketInvalidParams = -32021
	codeMarketNotFound      = -32022
	codeMarketForbidden     = -32023
	codeMarketConflict      = -32024
	codeMarketInternal      = -32025
	codeMarketSettlement    = -32026
)

type marketTxParams struct {
	Asset     string `json:"asset"`
	Price     string `json:"price,omitempty"`
	Nonce     uint64 `json:"nonce"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

type marketAssetParams struct {
	Asset string `json:"asset"`
}

type marketAccountParams struct {
	Address string `json:"address"`
}

type receiptJSON struct {
	Ref      string `json:"ref"`
	Op       string `json:"op"`
	Asset    string `json:"asset"`
	Sequence uint64 `json:"sequence"`
}

type listingJSON struct {
	Address   string `json:"address"`
	Owner     string `json:"owner"`
	Asset     string `json:"asset"`
	Price     string `json:"price"`
	Bump      uint8  `json:"bump"`
	CreatedAt uint64 `json:"createdAt"`
}

type accountJSON struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

var methodOps = map[string]types.MarketOp{
	"market_list":   types.OpList,
	"market_buy":    types.OpBuy,
	"market_cancel": types.OpCancel,
}

func (s *Server) handleMarketSubmit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	op, ok := methodOps[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", "exactly one parameter object expected")
		return
	}
	var params marketTxParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	tx, err := buildMarketTx(op, &params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	receipt, err := s.node.SubmitMarketTx(tx)
	if err != nil {
		status, code, message := classifyMarketError(err)
		writeError(w, status, req.ID, code, message, err.Error())
		return
	}
	writeResult(w, req.ID, &receiptJSON{
		Ref:      receipt.RefHex(),
		Op:       string(receipt.Op),
		Asset:    hex.EncodeToString(receipt.Asset[:]),
		Sequence: receipt.Sequence,
	})
}

func (s *Server) handleMarketGetListing(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", "exactly one parameter object expected")
		return
	}
	var params marketAssetParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := parseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	listing, err := s.node.Listing(asset)
	if err != nil {
		status, code, message := classifyMarketError(err)
		writeError(w, status, req.ID, code, message, err.Error())
		return
	}
	writeResult(w, req.ID, listingToJSON(listing))
}

func (s *Server) handleMarketListings(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", "no parameters expected")
		return
	}
	listings, err := s.node.Listings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeMarketInternal, "internal_error", err.Error())
		return
	}
	out := make([]*listingJSON, 0, len(listings))
	for _, listing := range listings {
		out = append(out, listingToJSON(listing))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleMarketGetAccount(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", "exactly one parameter object expected")
		return
	}
	var params marketAccountParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(params.Address))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := s.node.Account(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeMarketInternal, "internal_error", err.Error())
		return
	}
	balance := "0"
	if account.Balance != nil {
		balance = account.Balance.String()
	}
	writeResult(w, req.ID, &accountJSON{Address: addr.String(), Balance: balance, Nonce: account.Nonce})
}

func (s *Server) handleMarketEvents(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", "no parameters expected")
		return
	}
	writeResult(w, req.ID, s.node.Events())
}

func buildMarketTx(op types.MarketOp, params *marketTxParams) (*types.MarketTx, error) {
	asset, err := parseAssetID(params.Asset)
	if err != nil {
		return nil, err
	}
	pub, err := hex.DecodeString(strings.TrimSpace(params.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("invalid public key hex: %w", err)
	}
	sig, err := hex.DecodeString(strings.TrimSpace(params.Signature))
	if err != nil {
		return nil, fmt.Errorf("invalid signature hex: %w", err)
	}
	tx := &types.MarketTx{
		Op:        op,
		Asset:     asset,
		Nonce:     params.Nonce,
		PublicKey: pub,
		Signature: sig,
	}
	if op == types.OpList {
		price, err := parsePositiveBigInt(params.Price)
		if err != nil {
			return nil, err
		}
		tx.Price = price
	}
	return tx, nil
}

func parseAssetID(raw string) ([32]byte, error) {
	var out [32]byte
	decoded, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return out, fmt.Errorf("invalid asset hex: %w", err)
	}
	if len(decoded) != 32 {
		return out, fmt.Errorf("asset must be 32 bytes, got %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

func parsePositiveBigInt(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("price required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid price %q", raw)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("price must be positive")
	}
	return value, nil
}

func listingToJSON(listing *market.Listing) *listingJSON {
	if listing == nil {
		return nil
	}
	address := ""
	if derived, err := market.VerifyListingAddress(listing.Asset, listing.Bump); err == nil {
		address = crypto.NewAddress(crypto.NovaPrefix, derived[:]).String()
	}
	price := "0"
	if listing.Price != nil {
		price = listing.Price.String()
	}
	return &listingJSON{
		Address:   address,
		Owner:     crypto.NewAddress(crypto.NovaPrefix, listing.Owner[:]).String(),
		Asset:     hex.EncodeToString(listing.Asset[:]),
		Price:     price,
		Bump:      listing.Bump,
		CreatedAt: listing.CreatedAt,
	}
}

func classifyMarketError(err error) (int, int, string) {
	switch {
	case errors.Is(err, types.ErrTxUnsigned) || errors.Is(err, types.ErrTxBadSignature):
		return http.StatusForbidden, codeMarketForbidden, "forbidden"
	case market.IsValidation(err):
		return http.StatusBadRequest, codeMarketInvalidParams, "invalid_params"
	case market.IsAuthorization(err):
		return http.StatusForbidden, codeMarketForbidden, "forbidden"
	case errors.Is(err, market.ErrNotFound):
		return http.StatusNotFound, codeMarketNotFound, "not_found"
	case market.IsStateConflict(err) || errors.Is(err, core.ErrInvalidNonce):
		return http.StatusConflict, codeMarketConflict, "conflict"
	case market.IsSettlement(err):
		return http.StatusBadRequest, codeMarketSettlement, "settlement_failed"
	default:
		return http.StatusInternalServerError, codeMarketInternal, "internal_error"
	}
}
