package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	hosterrors "cyberswap/core/errors"
	"cyberswap/native/market"
)

// ExecuteParams is the single positional parameter of cyberswap_execute.
type ExecuteParams struct {
	Contract string                 `json:"contract"`
	Sender   string                 `json:"sender"`
	Funds    []market.NativeBalance `json:"funds,omitempty"`
	Msg      json.RawMessage        `json:"msg"`
}

// QueryParams is the single positional parameter of cyberswap_query.
type QueryParams struct {
	Contract string          `json:"contract"`
	Msg      json.RawMessage `json:"msg"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params ExecuteParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if strings.TrimSpace(params.Contract) == "" || strings.TrimSpace(params.Sender) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "contract and sender are required", nil)
		return
	}
	if len(params.Msg) == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "msg is required", nil)
		return
	}
	result, err := s.backend.Execute(r.Context(), params.Contract, params.Sender, params.Funds, params.Msg)
	if err != nil {
		writeHostError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params QueryParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if strings.TrimSpace(params.Contract) == "" || len(params.Msg) == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "contract and msg are required", nil)
		return
	}
	out, err := s.backend.Query(r.Context(), params.Contract, params.Msg)
	if err != nil {
		writeHostError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, json.RawMessage(out))
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one parameter object")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid parameter object: %v", err)
	}
	return nil
}

// writeHostError maps contract and host failures onto JSON-RPC errors. The
// error kind travels in the data field so clients can branch on it.
func writeHostError(w http.ResponseWriter, id interface{}, err error) {
	status, code, kind := classify(err)
	writeError(w, status, id, code, err.Error(), map[string]string{"kind": kind})
}

func classify(err error) (int, int, string) {
	switch {
	case errors.Is(err, hosterrors.ErrUnknownContract):
		return http.StatusNotFound, codeNotFound, "unknown_contract"
	case errors.Is(err, hosterrors.ErrNotInstantiated):
		return http.StatusConflict, codeConflict, "not_instantiated"
	case errors.Is(err, hosterrors.ErrInvalidSender):
		return http.StatusBadRequest, codeInvalidParams, "invalid_sender"
	}
	kind := market.ErrorKind(err)
	switch kind {
	case "authorization":
		return http.StatusForbidden, codeUnauthorized, kind
	case "not_found":
		return http.StatusNotFound, codeNotFound, kind
	case "state", "duplicate", "temporal":
		return http.StatusConflict, codeConflict, kind
	case "validation", "allow_list", "swap_mismatch", "channel_mismatch", "invalid_message":
		return http.StatusBadRequest, codeInvalidParams, kind
	default:
		return http.StatusInternalServerError, codeServerError, kind
	}
}
