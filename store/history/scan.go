package history

import (
	"encoding/json"

	"github.com/pandodao/wallet-core/core"
)

type scanner interface {
	Scan(dest ...any) error
}

var scanColumns = []string{
	"id",
	"wallet_id",
	"status",
	"data",
}

func scanTransaction(scanner scanner, tx *core.HistoricalTransaction) error {
	var (
		data   []byte
		status core.TransactionStatus
		id     uint64
		wallet string
	)

	if err := scanner.Scan(&id, &wallet, &status, &data); err != nil {
		return err
	}

	if err := json.Unmarshal(data, tx); err != nil {
		return err
	}

	// columns win over the serialized copy
	tx.ID = id
	tx.WalletID = wallet
	tx.Status = status
	return nil
}
