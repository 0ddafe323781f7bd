package model

import (
	"fmt"
	"time"
)

// Direction selects outgoing or incoming transactions of an account.
type Direction string

const (
	DirectionOut Direction = "Out"
	DirectionIn  Direction = "In"
)

// SortOrder of a transaction list by creation date.
type SortOrder string

const (
	SortAsc    SortOrder = "Asc"
	SortDesc   SortOrder = "Desc"
	SortNoSort SortOrder = "NoSort"
)

// DefaultTxWindow is the history window used when dateFrom is absent.
const DefaultTxWindow = 7 * 24 * time.Hour

// Tx is a persisted outgoing transaction. Addresses and hash are stored
// without 0x; logins are ciphertext and may be absent for foreign addresses.
type Tx struct {
	Hash            string    `db:"tx_hash"`
	SourceAddress   string    `db:"source_address"`
	DestAddress     string    `db:"dest_address"`
	WeiValue        string    `db:"wei_value"`
	CreatedDate     time.Time `db:"created_date"`
	SourceUserLogin *string   `db:"source_user_login"`
	DestUserLogin   *string   `db:"dest_user_login"`
}

// TxListParams are the params of txGetList as received.
type TxListParams struct {
	Direction      Direction `json:"direction"`
	AccountAddress string    `json:"accountAddress"`
	DateFrom       *string   `json:"dateFrom,omitempty"`
	DateTo         *string   `json:"dateTo,omitempty"`
	SortOrder      SortOrder `json:"sortOrder,omitempty"`
}

// TxListQuery is the resolved query passed to the store.
type TxListQuery struct {
	Direction Direction
	Address   string // without 0x
	From      time.Time
	To        time.Time
	Sort      SortOrder
}

// Validate validates TxListParams.
func (p *TxListParams) Validate() error {
	if p.Direction != DirectionOut && p.Direction != DirectionIn {
		return fmt.Errorf("direction must be Out or In")
	}
	if p.AccountAddress == "" {
		return fmt.Errorf("accountAddress is required")
	}
	switch p.SortOrder {
	case "", SortAsc, SortDesc, SortNoSort:
	default:
		return fmt.Errorf("sortOrder must be Asc, Desc or NoSort")
	}
	return nil
}

// Window resolves the date range. A missing or unparsable dateFrom means
// DefaultTxWindow before now; a missing or unparsable dateTo means now.
func (p *TxListParams) Window(now time.Time) (from, to time.Time) {
	from, to = now.Add(-DefaultTxWindow), now
	if t, ok := parseDate(p.DateFrom); ok {
		from = t
	}
	if t, ok := parseDate(p.DateTo); ok {
		to = t
	}
	return from.UTC(), to.UTC()
}

func parseDate(s *string) (time.Time, bool) {
	if s == nil || *s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, *s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TxListItem is one element of the txGetList result.
type TxListItem struct {
	TxHash          string    `json:"txHash"`
	SourceAddress   string    `json:"sourceAddress"`
	DestAddress     string    `json:"destAddress"`
	SourceUserLogin string    `json:"sourceUserLogin,omitempty"`
	DestUserLogin   string    `json:"destUserLogin,omitempty"`
	EtherValue      string    `json:"etherValue"`
	TxCreatedDate   time.Time `json:"txCreatedDate"`
}

// TxDetails is the txGet result, read from the chain.
type TxDetails struct {
	Hash             string  `json:"hash"`
	Nonce            uint64  `json:"nonce"`
	BlockHash        *string `json:"blockHash"`
	BlockNumber      *uint64 `json:"blockNumber"`
	TransactionIndex *uint   `json:"transactionIndex"`
	From             string  `json:"from"`
	To               *string `json:"to"`
	Value            string  `json:"value"`
	Gas              uint64  `json:"gas"`
	GasPrice         string  `json:"gasPrice"`
	Input            string  `json:"input"`
	SourceUserLogin  string  `json:"sourceUserLogin,omitempty"`
	DestUserLogin    string  `json:"destUserLogin,omitempty"`
}
