package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"hostpay/internal/explorer"
)

// Byte-size estimate of a one-output P2PKH transaction.
const (
	txInSize    = 148
	txOutSize   = 34
	txBaseSize  = 10
	defaultRate = 1
)

// SweepOptions parameterise a single-address consolidation.
type SweepOptions struct {
	Index        uint32
	Treasury     string
	FeeRateSatVb int64
}

// SweepReceipt reports the outcome of sweeping one deposit address.
type SweepReceipt struct {
	Address string
	TxID    string
	Amount  int64
	Swept   bool
}

// SweepAddress consolidates every confirmed unspent of the deposit
// address at opts.Index into the treasury address. An address with no
// spendable balance is a no-op, never an error, so the operation is safe
// to repeat on already swept addresses.
func (s *Store) SweepAddress(ctx context.Context, chain explorer.Service, opts SweepOptions) (SweepReceipt, error) {
	address, err := s.DeriveAddress(opts.Index)
	if err != nil {
		return SweepReceipt{}, err
	}
	receipt := SweepReceipt{Address: address}

	utxos, err := chain.AddressUnspents(ctx, address)
	if err != nil {
		return receipt, err
	}
	if len(utxos) == 0 {
		return receipt, nil
	}

	var total int64
	for _, u := range utxos {
		total += u.Value
	}

	feeRate := opts.FeeRateSatVb
	if feeRate <= 0 {
		feeRate = defaultRate
	}
	fee := feeRate * int64(txInSize*len(utxos)+txOutSize+txBaseSize)
	if total <= fee {
		// Not worth moving; leave the dust for a later run.
		return receipt, nil
	}

	txHex, err := s.buildSweepTx(utxos, opts.Index, address, opts.Treasury, total-fee)
	if err != nil {
		return receipt, err
	}

	txid, err := chain.Broadcast(ctx, txHex)
	if err != nil {
		return receipt, err
	}

	receipt.TxID = txid
	receipt.Amount = total - fee
	receipt.Swept = true
	return receipt, nil
}

// buildSweepTx assembles and signs a one-output consolidation transaction
// spending every utxo of a single derived address.
func (s *Store) buildSweepTx(utxos []explorer.Utxo, index uint32, source, treasury string, amount int64) (string, error) {
	treasuryAddr, err := btcutil.DecodeAddress(treasury, s.net)
	if err != nil {
		return "", fmt.Errorf("decode treasury address: %w", err)
	}
	treasuryScript, err := txscript.PayToAddrScript(treasuryAddr)
	if err != nil {
		return "", fmt.Errorf("treasury script: %w", err)
	}

	sourceAddr, err := btcutil.DecodeAddress(source, s.net)
	if err != nil {
		return "", fmt.Errorf("decode source address: %w", err)
	}
	sourceScript, err := txscript.PayToAddrScript(sourceAddr)
	if err != nil {
		return "", fmt.Errorf("source script: %w", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, u := range utxos {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return "", fmt.Errorf("parse utxo txid %s: %w", u.TxID, err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, u.Vout), nil, nil))
	}
	tx.AddTxOut(wire.NewTxOut(amount, treasuryScript))

	priv, err := s.privateKey(index)
	if err != nil {
		return "", err
	}
	for i := range tx.TxIn {
		sigScript, err := txscript.SignatureScript(tx, i, sourceScript, txscript.SigHashAll, priv, true)
		if err != nil {
			return "", fmt.Errorf("sign input %d: %w", i, err)
		}
		tx.TxIn[i].SignatureScript = sigScript
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("serialize sweep tx: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}
