package explorer

import (
	"context"
	"errors"
)

// ErrUnreachable wraps every connectivity or node failure of the ledger
// backend. Callers treat it as transient and retry on the next scheduled
// run; it is never fatal to the process.
var ErrUnreachable = errors.New("explorer: ledger backend unreachable")

// Utxo is an unspent output of a deposit address.
type Utxo struct {
	TxID      string
	Vout      uint32
	Value     int64
	Confirmed bool
}

// Service is the ledger contract the settlement core consumes: confirmed
// balance lookup, unspent enumeration, and transaction broadcast. An
// address that never received funds yields a zero balance, not an error.
type Service interface {
	AddressBalance(ctx context.Context, address string) (int64, error)
	AddressUnspents(ctx context.Context, address string) ([]Utxo, error)
	Broadcast(ctx context.Context, txHex string) (string, error)
}
