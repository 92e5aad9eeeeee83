package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EsploraOptions parameterise the esplora HTTP client.
type EsploraOptions struct {
	BaseURL string
	Timeout time.Duration
}

// Esplora talks to an esplora-compatible block explorer (electrs and
// friends) over HTTP.
type Esplora struct {
	opts    EsploraOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewEsplora constructs an esplora-backed ledger service.
func NewEsplora(opts EsploraOptions, logger zerolog.Logger) *Esplora {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Esplora{
		opts:    opts,
		logger:  logger.With().Str("component", "explorer").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

type addressStats struct {
	FundedTxoSum int64 `json:"funded_txo_sum"`
	SpentTxoSum  int64 `json:"spent_txo_sum"`
}

type addressResponse struct {
	Address    string       `json:"address"`
	ChainStats addressStats `json:"chain_stats"`
}

// AddressBalance returns the confirmed balance of an address in smallest
// units. Unknown addresses report zero.
func (e *Esplora) AddressBalance(ctx context.Context, address string) (int64, error) {
	var res addressResponse
	if err := e.getJSON(ctx, "/address/"+address, &res); err != nil {
		return 0, err
	}
	return res.ChainStats.FundedTxoSum - res.ChainStats.SpentTxoSum, nil
}

type utxoResponse struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  int64  `json:"value"`
	Status struct {
		Confirmed bool `json:"confirmed"`
	} `json:"status"`
}

// AddressUnspents lists the confirmed unspent outputs of an address.
func (e *Esplora) AddressUnspents(ctx context.Context, address string) ([]Utxo, error) {
	var res []utxoResponse
	if err := e.getJSON(ctx, "/address/"+address+"/utxo", &res); err != nil {
		return nil, err
	}

	utxos := make([]Utxo, 0, len(res))
	for _, u := range res {
		if !u.Status.Confirmed {
			continue
		}
		utxos = append(utxos, Utxo{
			TxID:      u.TxID,
			Vout:      u.Vout,
			Value:     u.Value,
			Confirmed: true,
		})
	}
	return utxos, nil
}

// Broadcast submits a raw transaction in hex format and returns its txid.
func (e *Esplora) Broadcast(ctx context.Context, txHex string) (string, error) {
	if e.baseURL == "" {
		return "", fmt.Errorf("%w: base url not configured", ErrUnreachable)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, e.baseURL+"/tx", strings.NewReader(txHex),
	)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("broadcast rejected (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	txid := strings.TrimSpace(string(payload))
	if txid == "" {
		return "", errors.New("broadcast returned empty txid")
	}
	return txid, nil
}

func (e *Esplora) getJSON(ctx context.Context, path string, out interface{}) error {
	if e.baseURL == "" {
		return fmt.Errorf("%w: base url not configured", ErrUnreachable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrUnreachable, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode explorer response: %w", err)
	}
	return nil
}

var _ Service = (*Esplora)(nil)
