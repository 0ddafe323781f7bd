package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JSONRPCVersion is the only protocol version accepted.
const JSONRPCVersion = "2.0"

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// Response is a JSON-RPC 2.0 response envelope. Exactly one of Result and
// Error is set; a nil Result is encoded as null.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// MarshalJSON drops "result" from error responses.
func (r Response) MarshalJSON() ([]byte, error) {
	id := r.ID
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	if r.Error != nil {
		return json.Marshal(struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      json.RawMessage `json:"id"`
			Error   *RPCError       `json:"error"`
		}{r.JSONRPC, id, r.Error})
	}
	return json.Marshal(struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  interface{}     `json:"result"`
	}{r.JSONRPC, id, r.Result})
}

// UserParams are the params of userAdd, userGet and accountGetList.
type UserParams struct {
	Realm     string `json:"realm"`
	UserLogin string `json:"userLogin"`
}

// UserResult is returned by userAdd and userGet.
type UserResult struct {
	CreatedDate time.Time `json:"createdDate"`
}

// AccountAddParams are the params of accountAdd. AccountPassword is the
// client-side credential (an HMAC computed by the calling application).
type AccountAddParams struct {
	Realm           string `json:"realm"`
	UserLogin       string `json:"userLogin"`
	AccountName     string `json:"accountName"`
	AccountPassword string `json:"accountPassword"`
}

// AccountAddResult is returned by accountAdd.
type AccountAddResult struct {
	Address     string    `json:"address"`
	CreatedDate time.Time `json:"createdDate"`
}

// AccountListItem is one element of the accountGetList result.
type AccountListItem struct {
	AccountAddress string    `json:"accountAddress"`
	AccountName    string    `json:"accountName"`
	Balance        string    `json:"balance"`
	CreatedDate    time.Time `json:"createdDate"`
}

// TxSendParams are the params of txSend.
type TxSendParams struct {
	AccountAddress     string  `json:"accountAddress"`
	DestinationAddress string  `json:"destinationAddress"`
	EtherValue         *string `json:"etherValue,omitempty"`
	AccountPassword    string  `json:"accountPassword"`
}

// TxSendResult is returned by txSend.
type TxSendResult struct {
	TxHash          string `json:"txHash"`
	BlockNumber     uint64 `json:"blockNumber"`
	ContractAddress string `json:"contractAddress,omitempty"`
}

// TxGetParams are the params of txGet.
type TxGetParams struct {
	TxHash string `json:"txHash"`
}

// AccountQRParams are the params of accountGetQr.
type AccountQRParams struct {
	AccountAddress string `json:"accountAddress"`
}

// AccountQRResult carries a base64 PNG QR code of an address.
type AccountQRResult struct {
	Address string `json:"address"`
	QR      string `json:"qr"`
}

func requireFields(fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if strings.TrimSpace(fields[i+1]) == "" {
			return fmt.Errorf("%s is required", fields[i])
		}
	}
	return nil
}

// Validate validates UserParams.
func (p *UserParams) Validate() error {
	return requireFields("realm", p.Realm, "userLogin", p.UserLogin)
}

// Validate validates AccountAddParams.
func (p *AccountAddParams) Validate() error {
	return requireFields("realm", p.Realm, "userLogin", p.UserLogin,
		"accountName", p.AccountName, "accountPassword", p.AccountPassword)
}

// Validate validates TxSendParams. Address formats are checked by the caller.
func (p *TxSendParams) Validate() error {
	return requireFields("accountAddress", p.AccountAddress,
		"destinationAddress", p.DestinationAddress, "accountPassword", p.AccountPassword)
}

// Validate validates TxGetParams.
func (p *TxGetParams) Validate() error {
	return requireFields("txHash", p.TxHash)
}

// Validate validates AccountQRParams.
func (p *AccountQRParams) Validate() error {
	return requireFields("accountAddress", p.AccountAddress)
}
