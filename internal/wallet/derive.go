package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// DeriveAddress returns the deposit address at the given derivation
// index. The mapping (seed, index) -> address is pure: the same index
// always yields the same address and no counter state is advanced.
func (s *Store) DeriveAddress(index uint32) (string, error) {
	child, err := s.external.Derive(index)
	if err != nil {
		return "", fmt.Errorf("derive index %d: %w", index, err)
	}

	addr, err := child.Address(s.net)
	if err != nil {
		return "", fmt.Errorf("encode address for index %d: %w", index, err)
	}
	return addr.EncodeAddress(), nil
}

// privateKey returns the signing key for a derivation index. It never
// leaves this package; sweeps are the only consumer.
func (s *Store) privateKey(index uint32) (*btcec.PrivateKey, error) {
	child, err := s.external.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("derive index %d: %w", index, err)
	}
	return child.ECPrivKey()
}
