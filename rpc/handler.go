package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/tolelom/tolchain/consensus"
	"github.com/tolelom/tolchain/ledger"
	"github.com/tolelom/tolchain/market"
)

// Handler serves read-only JSON-RPC queries against a running replica. It
// holds no state of its own: every method submits a consensus.QueryRequest
// to the replica's inbound channel and blocks on the synchronous reply, the
// same path a peer connection's AccountQuery/AssetQuery/etc. uses. Mutating
// operations (submitting transactions or order commands) go through the
// binary peer/client wire protocol exclusively, matching the external
// interface; this HTTP surface is a read-only introspection convenience,
// not an alternate write path.
type Handler struct {
	inbox chan<- consensus.Event
}

// NewHandler creates an RPC Handler backed by a replica's inbound channel.
func NewHandler(inbox chan<- consensus.Event) *Handler {
	return &Handler{inbox: inbox}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getAccount":
		return h.getAccount(req)
	case "getAssets":
		return h.getAssets(req)
	case "getMarkets":
		return h.getMarkets(req)
	case "getMarket":
		return h.getMarket(req)
	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) query(q consensus.QueryRequest) consensus.QueryResponse {
	q.Reply = make(chan consensus.QueryResponse, 1)
	h.inbox <- consensus.Event{Kind: consensus.EventQuery, Query: &q}
	return <-q.Reply
}

func (h *Handler) getAccount(req Request) Response {
	var params struct {
		PublicKeyHex string `json:"public_key"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	acct, err := decodeAccountHex(params.PublicKeyHex)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	resp := h.query(consensus.QueryRequest{Kind: consensus.QueryAccount, Account: acct})
	if resp.Err != nil {
		return errResponse(req.ID, CodeInternalError, resp.Err.Error())
	}
	return okResponse(req.ID, resp.Account)
}

func (h *Handler) getAssets(req Request) Response {
	resp := h.query(consensus.QueryRequest{Kind: consensus.QueryAsset})
	if resp.Err != nil {
		return errResponse(req.ID, CodeInternalError, resp.Err.Error())
	}
	return okResponse(req.ID, resp.Assets)
}

func (h *Handler) getMarkets(req Request) Response {
	resp := h.query(consensus.QueryRequest{Kind: consensus.QueryMarkets})
	if resp.Err != nil {
		return errResponse(req.ID, CodeInternalError, resp.Err.Error())
	}
	return okResponse(req.ID, resp.Markets)
}

func (h *Handler) getMarket(req Request) Response {
	var params struct {
		MarketID uint32 `json:"market_id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	resp := h.query(consensus.QueryRequest{Kind: consensus.QueryMarketInfo, MarketID: market.MarketID(params.MarketID)})
	if resp.Err != nil {
		return errResponse(req.ID, CodeInternalError, resp.Err.Error())
	}
	if resp.Market == nil {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("market %d not found", params.MarketID))
	}
	return okResponse(req.ID, resp.Market)
}

func decodeAccountHex(s string) (ledger.Account, error) {
	var acct ledger.Account
	b, err := hex.DecodeString(s)
	if err != nil {
		return acct, fmt.Errorf("public_key: %w", err)
	}
	if len(b) != len(acct) {
		return acct, fmt.Errorf("public_key must be %d bytes, got %d", len(acct), len(b))
	}
	copy(acct[:], b)
	return acct, nil
}
