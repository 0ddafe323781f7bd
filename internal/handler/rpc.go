package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/AlexZinkM/custody-wallet/internal/metrics"
	"github.com/AlexZinkM/custody-wallet/internal/model"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Wallet is the set of operations exposed over JSON-RPC.
type Wallet interface {
	AddUser(ctx context.Context, p model.UserParams) (*model.UserResult, error)
	GetUser(ctx context.Context, p model.UserParams) (*model.UserResult, error)
	AddAccount(ctx context.Context, p model.AccountAddParams) (*model.AccountAddResult, error)
	ListAccounts(ctx context.Context, p model.UserParams) ([]model.AccountListItem, error)
	SendTransaction(ctx context.Context, p model.TxSendParams) (*model.TxSendResult, error)
	ListTransactions(ctx context.Context, p model.TxListParams) ([]model.TxListItem, error)
	GetTransaction(ctx context.Context, p model.TxGetParams) (*model.TxDetails, error)
	AccountQR(ctx context.Context, p model.AccountQRParams) (*model.AccountQRResult, error)
}

type methodFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

type method struct {
	internalCode int
	call         methodFunc
}

// RPCHandler serves the wallet JSON-RPC 2.0 endpoint.
type RPCHandler struct {
	methods map[string]method
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewRPCHandler creates an RPCHandler dispatching to w.
func NewRPCHandler(w Wallet, m *metrics.Metrics, log *zap.Logger) *RPCHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &RPCHandler{
		methods: map[string]method{
			"userAdd":        {CodeUserAddFailed, bind(w.AddUser)},
			"userGet":        {CodeUserGetFailed, bind(w.GetUser)},
			"accountAdd":     {CodeAccountAddFailed, bind(w.AddAccount)},
			"accountGetList": {CodeAccountGetListFailed, bind(w.ListAccounts)},
			"accountGetQr":   {CodeAccountGetQRFailed, bind(w.AccountQR)},
			"txSend":         {CodeTxSendFailed, bind(w.SendTransaction)},
			"txGetList":      {CodeTxGetListFailed, bind(w.ListTransactions)},
			"txGet":          {CodeTxGetFailed, bind(w.GetTransaction)},
		},
		metrics: m,
		log:     log,
	}
}

// errParams is returned when params cannot be decoded into the method's
// parameter object.
var errParams = errors.New("params must be an object")

// bind adapts a typed wallet operation to a methodFunc.
func bind[P, R any](fn func(context.Context, P) (R, error)) methodFunc {
	return func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		var p P
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, errParams
			}
		}
		return fn(ctx, p)
	}
}

// ServeHTTP handles POST /
// @Summary      JSON-RPC 2.0 endpoint
// @Description  Methods: userAdd, userGet, accountAdd, accountGetList, accountGetQr, txSend, txGetList, txGet.
// @Description  Envelope errors answer 422, method results and method errors answer 200.
// @Tags         rpc
// @Accept       json
// @Produce      json
// @Param        request  body      model.Request   true  "JSON-RPC request"
// @Success      200      {object}  model.Response
// @Failure      422      {object}  model.Response
// @Router       / [post]
func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.envelopeError(w, nil, CodeParseError, "request body too large or unreadable")
		return
	}

	var req model.Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.envelopeError(w, nil, CodeParseError, "parse error")
		return
	}
	if req.JSONRPC != model.JSONRPCVersion || req.Method == "" {
		h.envelopeError(w, req.ID, CodeInvalidRequest, "invalid request")
		return
	}
	m, ok := h.methods[req.Method]
	if !ok {
		h.envelopeError(w, req.ID, CodeMethodNotFound, "method not found")
		return
	}

	log := h.log.With(zap.String("method", req.Method), zap.ByteString("id", req.ID))
	log.Debug("rpc request")

	resp := model.Response{JSONRPC: model.JSONRPCVersion, ID: req.ID}
	code := 0
	result, err := m.call(r.Context(), req.Params)
	switch {
	case errors.Is(err, errParams):
		resp.Error = &model.RPCError{Code: CodeValidation, Message: err.Error()}
	case err != nil:
		resp.Error = rpcError(m.internalCode, err)
	default:
		resp.Result = result
	}
	if resp.Error != nil {
		code = resp.Error.Code
		if code <= CodeUserAddFailed && code >= CodeAccountGetQRFailed {
			log.Error("rpc failed", zap.Int("code", code), zap.Error(err))
		} else {
			log.Info("rpc error", zap.Int("code", code), zap.Error(err))
		}
	}
	h.metrics.ObserveRequest(req.Method, code, time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

func (h *RPCHandler) envelopeError(w http.ResponseWriter, id json.RawMessage, code int, msg string) {
	h.metrics.ObserveRequest("invalid", code, 0)
	writeJSON(w, http.StatusUnprocessableEntity, model.Response{
		JSONRPC: model.JSONRPCVersion,
		ID:      id,
		Error:   &model.RPCError{Code: code, Message: msg},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
