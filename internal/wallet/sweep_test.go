package wallet

import (
	"context"
	"errors"
	"strings"
	"testing"

	"hostpay/internal/explorer"
)

type fakeChain struct {
	unspents   map[string][]explorer.Utxo
	unspentErr error
	broadcasts []string
	txid       string
}

func (f *fakeChain) AddressBalance(ctx context.Context, address string) (int64, error) {
	var total int64
	for _, u := range f.unspents[address] {
		total += u.Value
	}
	return total, nil
}

func (f *fakeChain) AddressUnspents(ctx context.Context, address string) ([]explorer.Utxo, error) {
	if f.unspentErr != nil {
		return nil, f.unspentErr
	}
	return f.unspents[address], nil
}

func (f *fakeChain) Broadcast(ctx context.Context, txHex string) (string, error) {
	f.broadcasts = append(f.broadcasts, txHex)
	if f.txid == "" {
		return "txid", nil
	}
	return f.txid, nil
}

const dummyTxID = "aa11223344556677889900aabbccddeeff00112233445566778899aabbccddee"

func TestSweepAddressZeroBalanceIsNoop(t *testing.T) {
	s, _ := testWallet(t)
	chain := &fakeChain{unspents: map[string][]explorer.Utxo{}}

	receipt, err := s.SweepAddress(context.Background(), chain, SweepOptions{Index: 0, Treasury: mustDerive(t, s, 90)})
	if err != nil {
		t.Fatalf("empty address sweep must not error: %v", err)
	}
	if receipt.Swept {
		t.Fatal("nothing to sweep, receipt must report no-op")
	}
	if len(chain.broadcasts) != 0 {
		t.Fatal("no broadcast may happen for a zero-balance address")
	}
}

func TestSweepAddressConsolidatesIntoTreasury(t *testing.T) {
	s, _ := testWallet(t)

	addr := mustDerive(t, s, 3)
	chain := &fakeChain{
		unspents: map[string][]explorer.Utxo{
			addr: {
				{TxID: dummyTxID, Vout: 0, Value: 60_000, Confirmed: true},
				{TxID: dummyTxID, Vout: 1, Value: 40_000, Confirmed: true},
			},
		},
		txid: "sweeptx",
	}

	receipt, err := s.SweepAddress(context.Background(), chain, SweepOptions{
		Index:        3,
		Treasury:     mustDerive(t, s, 90),
		FeeRateSatVb: 1,
	})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !receipt.Swept {
		t.Fatal("funded address must be swept")
	}
	if receipt.TxID != "sweeptx" {
		t.Fatalf("expected broadcast txid, got %s", receipt.TxID)
	}

	// Two inputs, one output: fee is 148*2+34+10 = 340 sats at 1 sat/vB.
	if receipt.Amount != 100_000-340 {
		t.Fatalf("expected swept amount %d, got %d", 100_000-340, receipt.Amount)
	}
	if len(chain.broadcasts) != 1 {
		t.Fatalf("expected exactly one broadcast, got %d", len(chain.broadcasts))
	}
	if !isHex(chain.broadcasts[0]) {
		t.Fatalf("broadcast payload must be raw tx hex, got %q", chain.broadcasts[0])
	}
}

func TestSweepAddressDustStaysPut(t *testing.T) {
	s, _ := testWallet(t)

	addr := mustDerive(t, s, 1)
	chain := &fakeChain{
		unspents: map[string][]explorer.Utxo{
			addr: {{TxID: dummyTxID, Vout: 0, Value: 100, Confirmed: true}},
		},
	}

	receipt, err := s.SweepAddress(context.Background(), chain, SweepOptions{Index: 1, Treasury: mustDerive(t, s, 90)})
	if err != nil {
		t.Fatalf("dust sweep must not error: %v", err)
	}
	if receipt.Swept || len(chain.broadcasts) != 0 {
		t.Fatal("a balance below the fee must not be swept")
	}
}

func TestSweepAddressPropagatesLedgerFailure(t *testing.T) {
	s, _ := testWallet(t)
	chain := &fakeChain{unspentErr: explorer.ErrUnreachable}

	_, err := s.SweepAddress(context.Background(), chain, SweepOptions{Index: 0, Treasury: mustDerive(t, s, 90)})
	if !errors.Is(err, explorer.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func mustDerive(t *testing.T, s *Store, index uint32) string {
	t.Helper()
	addr, err := s.DeriveAddress(index)
	if err != nil {
		t.Fatalf("derive %d: %v", index, err)
	}
	return addr
}

func isHex(v string) bool {
	if v == "" {
		return false
	}
	return strings.Trim(strings.ToLower(v), "0123456789abcdef") == ""
}
