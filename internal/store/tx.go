package store

import (
	"context"
	"fmt"

	"github.com/AlexZinkM/custody-wallet/internal/model"
)

// TxAdd records a broadcast transaction. CreatedDate is assigned here.
// inserted is false when the hash is already recorded.
func (s *Store) TxAdd(ctx context.Context, tx model.Tx) (model.Tx, bool, error) {
	tx.CreatedDate = now()
	res, err := s.db.NamedExecContext(ctx,
		`INSERT INTO txs (tx_hash, source_address, dest_address, wei_value, created_date)
		 VALUES (:tx_hash, :source_address, :dest_address, :wei_value, :created_date)
		 ON CONFLICT DO NOTHING`, tx)
	if err != nil {
		return model.Tx{}, false, fmt.Errorf("%w: insert tx: %w", ErrStore, err)
	}
	ok, err := inserted(res)
	if err != nil || !ok {
		return model.Tx{}, false, err
	}
	return tx, true, nil
}

const txListQuery = `SELECT t.tx_hash, t.source_address, t.dest_address, t.wei_value, t.created_date,
	su.user_login AS source_user_login, du.user_login AS dest_user_login
FROM txs t
LEFT JOIN accounts sa ON sa.account_address = t.source_address
LEFT JOIN users su ON su.user_id = sa.user_id
LEFT JOIN accounts da ON da.account_address = t.dest_address
LEFT JOIN users du ON du.user_id = da.user_id
WHERE %s = ? AND t.created_date >= ? AND t.created_date <= ?%s`

// TxGetList returns the transactions sent from (DirectionOut) or to
// (DirectionIn) q.Address inside [q.From, q.To], with the login
// ciphertexts of both parties where they are custodial accounts.
func (s *Store) TxGetList(ctx context.Context, q model.TxListQuery) ([]model.Tx, error) {
	column := "t.source_address"
	if q.Direction == model.DirectionIn {
		column = "t.dest_address"
	}
	var order string
	switch q.Sort {
	case model.SortAsc:
		order = " ORDER BY t.created_date ASC, t.tx_hash"
	case model.SortDesc:
		order = " ORDER BY t.created_date DESC, t.tx_hash"
	}

	txs := []model.Tx{}
	err := s.db.SelectContext(ctx, &txs, s.db.Rebind(fmt.Sprintf(txListQuery, column, order)),
		q.Address, q.From.UTC(), q.To.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: list txs: %w", ErrStore, err)
	}
	return txs, nil
}
