package wallet

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

var testParams = Params{Network: "regtest", CoinType: 1}

func testWallet(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallet.json")
	s, err := Create(path, testParams)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return s, path
}

func TestCreateTwiceFailsWithWalletExists(t *testing.T) {
	s, path := testWallet(t)

	before, err := s.DeriveAddress(0)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	if _, err := Create(path, testParams); !errors.Is(err, ErrWalletExists) {
		t.Fatalf("second create must fail with ErrWalletExists, got %v", err)
	}

	// The existing wallet must be untouched: derivation still yields
	// the original address after a reload.
	reloaded, err := Load(path, testParams)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	after, err := reloaded.DeriveAddress(0)
	if err != nil {
		t.Fatalf("derive after reload: %v", err)
	}
	if before != after {
		t.Fatalf("wallet contents changed: %s -> %s", before, after)
	}
}

func TestLoadMissingWallet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	if _, err := Load(path, testParams); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestDeriveAddressIsDeterministic(t *testing.T) {
	s, _ := testWallet(t)

	first, err := s.DeriveAddress(7)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := s.DeriveAddress(7)
		if err != nil {
			t.Fatalf("derive: %v", err)
		}
		if again != first {
			t.Fatalf("derivation must be pure: %s vs %s", first, again)
		}
	}

	other, err := s.DeriveAddress(8)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if other == first {
		t.Fatal("distinct indexes must yield distinct addresses")
	}
}

func TestNextIndexConcurrentCallersGetDistinctIndexes(t *testing.T) {
	s, _ := testWallet(t)

	const n = 32
	indexes := make(chan uint32, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, err := s.NextIndex()
			if err != nil {
				t.Errorf("next index: %v", err)
				return
			}
			indexes <- idx
		}()
	}
	wg.Wait()
	close(indexes)

	seen := make(map[uint32]bool, n)
	for idx := range indexes {
		if seen[idx] {
			t.Fatalf("index %d handed out twice", idx)
		}
		seen[idx] = true
	}
	for i := uint32(0); i < n; i++ {
		if !seen[i] {
			t.Fatalf("index %d missing; reservation must be gapless", i)
		}
	}
}

func TestNextIndexSurvivesReload(t *testing.T) {
	s, path := testWallet(t)

	for i := 0; i < 3; i++ {
		if _, err := s.NextIndex(); err != nil {
			t.Fatalf("next index: %v", err)
		}
	}

	reloaded, err := Load(path, testParams)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	idx, err := reloaded.NextIndex()
	if err != nil {
		t.Fatalf("next index after reload: %v", err)
	}
	if idx != 3 {
		t.Fatalf("counter must persist across restarts, expected 3, got %d", idx)
	}
}

func TestCreateFailureLeavesNothingBehind(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("seed blocker file: %v", err)
	}

	// The parent "directory" is a regular file, so create cannot finish.
	path := filepath.Join(blocker, "wallet.json")
	_, err := Create(path, testParams)
	if err == nil {
		t.Fatal("create must fail when the wallet directory cannot be made")
	}
	if errors.Is(err, ErrWalletExists) {
		t.Fatalf("a failed create must not masquerade as an existing wallet: %v", err)
	}
	if _, statErr := os.Stat(path); statErr == nil {
		t.Fatal("no wallet file may remain after a failed create")
	}
}

func TestUnknownNetworkRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	if _, err := Create(path, Params{Network: "moonnet"}); !errors.Is(err, ErrUnknownNetwork) {
		t.Fatalf("expected ErrUnknownNetwork, got %v", err)
	}
}
