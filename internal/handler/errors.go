package handler

import (
	"context"
	"errors"

	"github.com/AlexZinkM/custody-wallet/internal/client"
	"github.com/AlexZinkM/custody-wallet/internal/custody"
	"github.com/AlexZinkM/custody-wallet/internal/model"
	"github.com/AlexZinkM/custody-wallet/internal/store"
)

// JSON-RPC reserved codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
)

// Application codes.
const (
	CodeValidation        = -3001
	CodeAuthFailed        = -3002
	CodeTransient         = -3003
	CodeBroadcastRejected = -3004
	CodeReceiptPending    = -3005
	CodeNotFound          = -2002
)

// Internal failure codes, one per method.
const (
	CodeUserAddFailed        = -1001
	CodeAccountAddFailed     = -1002
	CodeTxSendFailed         = -1003
	CodeAccountGetListFailed = -1004
	CodeUserGetFailed        = -1005
	CodeTxGetListFailed      = -1006
	CodeTxGetFailed          = -1007
	CodeAccountGetQRFailed   = -1008
)

const (
	msgAuthFailed = "authentication failed"
	msgTransient  = "temporary failure, retry later"
	msgRejected   = "transaction rejected"
	msgPending    = "transaction sent, receipt pending; look it up with txGet"
	msgInternal   = "internal error"
)

var transientErrs = []error{
	store.ErrStore,
	client.ErrNode,
	client.ErrEstimation,
	client.ErrBroadcast,
	context.DeadlineExceeded,
	context.Canceled,
}

// rpcError maps a service error to the error member sent to the client.
// Only validation and not-found messages pass through; everything else
// gets a fixed message.
func rpcError(internalCode int, err error) *model.RPCError {
	var rejected *client.BroadcastRejectedError
	var pending *client.ReceiptTimeoutError

	switch {
	case errors.Is(err, custody.ErrValidation):
		return &model.RPCError{Code: CodeValidation, Message: err.Error()}
	case errors.Is(err, custody.ErrAuthFailed):
		return &model.RPCError{Code: CodeAuthFailed, Message: msgAuthFailed}
	case errors.Is(err, custody.ErrNotFound):
		return &model.RPCError{Code: CodeNotFound, Message: err.Error()}
	case errors.As(err, &rejected):
		return &model.RPCError{Code: CodeBroadcastRejected, Message: msgRejected, Data: map[string]interface{}{
			"txHash":      rejected.TxHash.Hex(),
			"blockNumber": rejected.BlockNumber,
			"gasUsed":     rejected.GasUsed,
		}}
	case errors.As(err, &pending):
		return &model.RPCError{Code: CodeReceiptPending, Message: msgPending, Data: map[string]interface{}{
			"txHash": pending.TxHash.Hex(),
		}}
	}
	for _, target := range transientErrs {
		if errors.Is(err, target) {
			return &model.RPCError{Code: CodeTransient, Message: msgTransient}
		}
	}
	return &model.RPCError{Code: internalCode, Message: msgInternal}
}
