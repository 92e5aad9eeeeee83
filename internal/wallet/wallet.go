package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/vulpemventures/go-bip39"
)

var (
	// ErrWalletExists signals that a wallet file is already present at
	// the requested path. This is the "use the existing wallet" signal:
	// boot recovers from it by loading, every other create failure is
	// fatal.
	ErrWalletExists = errors.New("wallet: wallet already exists at path")
	// ErrWalletNotFound signals that no wallet file exists at the path.
	ErrWalletNotFound = errors.New("wallet: no wallet found at path")
	// ErrInvalidMnemonic signals a corrupted or foreign wallet file.
	ErrInvalidMnemonic = errors.New("wallet: stored mnemonic is invalid")
	// ErrUnknownNetwork signals an unrecognised network name.
	ErrUnknownNetwork = errors.New("wallet: unknown network")
)

const entropyBits = 256

// Params select the settlement chain and derivation branch. Addresses
// are legacy base58 P2PKH and sweep inputs are signed with plain
// SIGHASH_ALL, so the network must be a chain that accepts btcd-style
// transactions; forks with their own sighash scheme (BCH SIGHASH_FORKID
// and friends) need their own signer before they can be configured here.
type Params struct {
	// Network is one of mainnet, testnet, regtest.
	Network string
	// CoinType is the BIP44 coin type (hardened) of the derivation path
	// m/44'/coinType'/0'/0/index.
	CoinType uint32
}

type walletFile struct {
	Mnemonic  string    `json:"mnemonic"`
	NextIndex uint32    `json:"next_index"`
	CreatedAt time.Time `json:"created_at"`
}

// Store owns the durable wallet: the bip39 seed phrase and the
// monotonically increasing derivation index. The seed is written exactly
// once per deployment; loading never regenerates or rewrites it.
type Store struct {
	path     string
	net      *chaincfg.Params
	external *hdkeychain.ExtendedKey

	mu        sync.Mutex
	mnemonic  string
	nextIndex uint32
	createdAt time.Time
}

// Create initialises a brand new wallet at path. It fails with
// ErrWalletExists when a wallet file is already present, leaving the
// existing file untouched.
func Create(path string, params Params) (*Store, error) {
	net, err := netParams(params.Network)
	if err != nil {
		return nil, err
	}

	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return nil, fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("generate mnemonic: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create wallet directory: %w", err)
		}
	}

	record := walletFile{
		Mnemonic:  mnemonic,
		NextIndex: 0,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal wallet file: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrWalletExists
		}
		return nil, fmt.Errorf("create wallet file: %w", err)
	}

	// A half-written wallet file must not survive: it would turn every
	// later Create into ErrWalletExists while Load chokes on it.
	if _, err := file.Write(raw); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write wallet file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close wallet file: %w", err)
	}

	return newStore(path, net, params.CoinType, record)
}

// Load opens an existing wallet. The stored mnemonic is validated but
// never modified.
func Load(path string, params Params) (*Store, error) {
	net, err := netParams(params.Network)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("read wallet file: %w", err)
	}

	var record walletFile
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("parse wallet file: %w", err)
	}

	return newStore(path, net, params.CoinType, record)
}

func newStore(path string, net *chaincfg.Params, coinType uint32, record walletFile) (*Store, error) {
	if !bip39.IsMnemonicValid(record.Mnemonic) {
		return nil, ErrInvalidMnemonic
	}

	external, err := externalBranch(record.Mnemonic, net, coinType)
	if err != nil {
		return nil, err
	}

	return &Store{
		path:      path,
		net:       net,
		external:  external,
		mnemonic:  record.Mnemonic,
		nextIndex: record.NextIndex,
		createdAt: record.CreatedAt,
	}, nil
}

// externalBranch derives the m/44'/coinType'/0'/0 node once; individual
// deposit keys hang off it by plain index.
func externalBranch(mnemonic string, net *chaincfg.Params, coinType uint32) (*hdkeychain.ExtendedKey, error) {
	seed := bip39.NewSeed(mnemonic, "")

	master, err := hdkeychain.NewMaster(seed, net)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}

	node := master
	for _, step := range []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + coinType,
		hdkeychain.HardenedKeyStart + 0,
		0,
	} {
		node, err = node.Derive(step)
		if err != nil {
			return nil, fmt.Errorf("derive account branch: %w", err)
		}
	}
	return node, nil
}

// NextIndex atomically reserves the next unused derivation index and
// persists the advanced counter before returning. Concurrent callers
// never receive the same index.
func (s *Store) NextIndex() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.nextIndex
	s.nextIndex++
	if err := s.persistLocked(); err != nil {
		s.nextIndex = index
		return 0, err
	}
	return index, nil
}

// persistLocked rewrites the wallet file with the current counter. The
// mnemonic is carried over verbatim; a temp file plus rename keeps the
// write atomic.
func (s *Store) persistLocked() error {
	record := walletFile{
		Mnemonic:  s.mnemonic,
		NextIndex: s.nextIndex,
		CreatedAt: s.createdAt,
	}

	raw, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write wallet file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace wallet file: %w", err)
	}
	return nil
}

// Network returns the chain parameters the store was opened with.
func (s *Store) Network() *chaincfg.Params {
	return s.net
}

func netParams(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(strings.TrimSpace(network)) {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, network)
	}
}
