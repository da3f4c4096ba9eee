// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/luxfi/cipherpay-relayer/internal/apperr"
	"github.com/luxfi/cipherpay-relayer/internal/field"
	"github.com/luxfi/cipherpay-relayer/internal/logging"
	"github.com/luxfi/cipherpay-relayer/internal/metrics"
	"github.com/luxfi/cipherpay-relayer/internal/retry"
)

// Client is the external ledger adapter contract of spec.md §4.10: submit
// the three operation kinds, and stream the events they eventually emit.
// The identifying fields (depositHash/nullifier/commitment) are forwarded
// unmodified so the program can correlate the proof with its on-chain
// claim, per spec.md §6's submit request bodies.
type Client interface {
	SubmitDeposit(ctx context.Context, proof, publicInputs []byte, depositHash [32]byte, commitment field.FE, mint string, amount uint64) (txSignature string, err error)
	SubmitTransfer(ctx context.Context, proof, publicInputs []byte, nullifier [32]byte, out1Commitment, out2Commitment field.FE) (txSignature string, err error)
	SubmitWithdraw(ctx context.Context, proof, publicInputs []byte, nullifier [32]byte, recipient, mint string, amount uint64) (txSignature string, err error)

	// Events streams decoded program events as they are observed. The
	// channel is closed when ctx is canceled.
	Events(ctx context.Context) (<-chan Event, error)
}

// RPCClient talks to a Solana-shaped JSON-RPC endpoint over HTTP, matching
// spec.md §4.10's "resilient to transient RPC failures (retry with
// backoff)" requirement via internal/retry.
type RPCClient struct {
	rpcURL    string
	programID string
	http      *http.Client
	log       logging.Logger
	m         *metrics.Registry

	pollInterval time.Duration
	lastSig      string
}

// NewRPCClient builds an RPCClient against rpcURL for the given base58
// programID. m may be nil in tests.
func NewRPCClient(rpcURL, programID string, log logging.Logger, m *metrics.Registry) *RPCClient {
	return &RPCClient{
		rpcURL:       rpcURL,
		programID:    programID,
		http:         &http.Client{Timeout: 30 * time.Second},
		log:          log,
		m:            m,
		pollInterval: 2 * time.Second,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *RPCClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("ledger: marshal request: %w", err)
	}

	return retry.Do(ctx, 3, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("ledger: rpc call %s: %w", method, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("ledger: rpc call %s: server error %d", method, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return retry.Permanent(fmt.Errorf("ledger: rpc call %s: client error %d", method, resp.StatusCode))
		}

		var rr rpcResponse
		if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
			return fmt.Errorf("ledger: decode response for %s: %w", method, err)
		}
		if rr.Error != nil {
			return retry.Permanent(fmt.Errorf("ledger: rpc error for %s: %s (%d)", method, rr.Error.Message, rr.Error.Code))
		}
		if out != nil {
			if err := json.Unmarshal(rr.Result, out); err != nil {
				return fmt.Errorf("ledger: unmarshal result for %s: %w", method, err)
			}
		}
		return nil
	})
}

// sendTransaction submits a base64-encoded, already-signed transaction and
// returns its signature, matching Solana's sendTransaction RPC method.
func (c *RPCClient) sendTransaction(ctx context.Context, txBase64 string) (string, error) {
	var sig string
	err := c.call(ctx, "sendTransaction", []any{txBase64, map[string]any{"encoding": "base64"}}, &sig)
	if err != nil {
		return "", apperr.Wrap(apperr.LedgerFailure, "send transaction", err)
	}
	return sig, nil
}

// submit wraps sendTransaction with the ledger submission metrics, labeled
// by operation kind.
func (c *RPCClient) submit(ctx context.Context, operation, txBase64 string) (string, error) {
	start := time.Now()
	sig, err := c.sendTransaction(ctx, txBase64)
	if c.m != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.m.LedgerSubmitTotal.WithLabelValues(operation, outcome).Inc()
		c.m.LedgerSubmitDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
	return sig, err
}

func (c *RPCClient) SubmitDeposit(ctx context.Context, proof, publicInputs []byte, depositHash [32]byte, commitment field.FE, mint string, amount uint64) (string, error) {
	tx := encodeInstruction("deposit", proof, publicInputs, map[string]any{
		"deposit_hash": hexEncode32(depositHash),
		"commitment":   commitment.Hex(),
		"mint":         mint, "amount": amount, "program_id": c.programID,
	})
	return c.submit(ctx, "deposit", tx)
}

func (c *RPCClient) SubmitTransfer(ctx context.Context, proof, publicInputs []byte, nullifier [32]byte, out1Commitment, out2Commitment field.FE) (string, error) {
	tx := encodeInstruction("transfer", proof, publicInputs, map[string]any{
		"nullifier":       hexEncode32(nullifier),
		"out1_commitment": out1Commitment.Hex(),
		"out2_commitment": out2Commitment.Hex(),
		"program_id":      c.programID,
	})
	return c.submit(ctx, "transfer", tx)
}

func (c *RPCClient) SubmitWithdraw(ctx context.Context, proof, publicInputs []byte, nullifier [32]byte, recipient, mint string, amount uint64) (string, error) {
	tx := encodeInstruction("withdraw", proof, publicInputs, map[string]any{
		"nullifier": hexEncode32(nullifier),
		"recipient": recipient, "mint": mint, "amount": amount, "program_id": c.programID,
	})
	return c.submit(ctx, "withdraw", tx)
}

// hexEncode32 renders a raw 32-byte identifier (deposit hash, nullifier) as
// lowercase hex. Unlike field.FE.Hex, this does not reduce mod p: these
// values are opaque hashes, not field elements.
func hexEncode32(b [32]byte) string {
	return hex.EncodeToString(b[:])
}

// encodeInstruction builds the base64 transaction payload the ledger RPC
// expects. The relayer core treats this as an opaque byte blob assembled by
// the program client layer; only the shape (proof ~256 bytes, public
// signals as 32-byte chunks) is spec'd, per spec.md §4.8 step 4.
func encodeInstruction(kind string, proof, publicInputs []byte, extra map[string]any) string {
	payload := map[string]any{
		"kind":          kind,
		"proof":         base64.StdEncoding.EncodeToString(proof),
		"public_inputs": base64.StdEncoding.EncodeToString(publicInputs),
		"extra":         extra,
	}
	b, _ := json.Marshal(payload)
	return base64.StdEncoding.EncodeToString(b)
}

// Events polls getSignaturesForAddress against programID and parses newly
// observed program log entries, emulating a push subscription with a
// bounded poll loop (Solana's websocket logsSubscribe is the production
// analogue; this adapter only needs the Event contract, not the transport).
func (c *RPCClient) Events(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event, 16)

	go func() {
		defer close(out)
		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sigs, err := c.fetchNewSignatures(ctx)
				if err != nil {
					if c.log != nil {
						c.log.Warn("ledger: poll signatures failed", logging.Err(err))
					}
					continue
				}
				for _, sig := range sigs {
					ev, ok, err := c.fetchAndParseEvent(ctx, sig)
					if err != nil {
						if c.log != nil {
							c.log.Warn("ledger: parse event failed", logging.String("signature", sig), logging.Err(err))
						}
						continue
					}
					if !ok {
						continue
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}

func (c *RPCClient) fetchNewSignatures(ctx context.Context) ([]string, error) {
	var result []struct {
		Signature string `json:"signature"`
	}
	params := []any{c.programID, map[string]any{"limit": 50}}
	if c.lastSig != "" {
		params[1].(map[string]any)["until"] = c.lastSig
	}
	if err := c.call(ctx, "getSignaturesForAddress", params, &result); err != nil {
		return nil, err
	}

	sigs := make([]string, 0, len(result))
	for i := len(result) - 1; i >= 0; i-- {
		sigs = append(sigs, result[i].Signature)
	}
	if len(result) > 0 {
		c.lastSig = result[0].Signature
	}
	return sigs, nil
}

func (c *RPCClient) fetchAndParseEvent(ctx context.Context, signature string) (Event, bool, error) {
	var tx struct {
		Meta struct {
			LogMessages []string `json:"logMessages"`
		} `json:"meta"`
	}
	err := c.call(ctx, "getTransaction", []any{signature, map[string]any{"encoding": "json"}}, &tx)
	if err != nil {
		return Event{}, false, err
	}

	for _, line := range tx.Meta.LogMessages {
		if ev, ok, err := parseProgramLog(line, signature); ok || err != nil {
			return ev, ok, err
		}
	}
	return Event{}, false, nil
}

// parseProgramLog decodes a single "Program log: <kind> <base64-payload>"
// line into an Event. Real program log encodings are program-specific; this
// adapter recognizes the three event kinds by a leading tag, matching the
// shape spec.md §4.9 describes for DepositCompleted.
func parseProgramLog(line, signature string) (Event, bool, error) {
	const prefix = "Program log: "
	if !strings.HasPrefix(line, prefix) {
		return Event{}, false, nil
	}
	rest := strings.TrimPrefix(line, prefix)

	fields := strings.SplitN(rest, " ", 2)
	if len(fields) != 2 {
		return Event{}, false, nil
	}
	kind, b64 := EventKind(fields[0]), fields[1]

	switch kind {
	case EventDepositCompleted, EventTransferCompleted, EventWithdrawCompleted:
	default:
		return Event{}, false, nil
	}

	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return Event{}, false, fmt.Errorf("ledger: decode event payload: %w", err)
	}

	switch kind {
	case EventDepositCompleted:
		var d DepositCompleted
		if err := json.Unmarshal(raw, &d); err != nil {
			return Event{}, false, fmt.Errorf("ledger: decode DepositCompleted: %w", err)
		}
		d.TxSignature = signature
		return Event{Kind: kind, Deposit: &d}, true, nil
	case EventTransferCompleted:
		var e TransferCompleted
		if err := json.Unmarshal(raw, &e); err != nil {
			return Event{}, false, fmt.Errorf("ledger: decode TransferCompleted: %w", err)
		}
		e.TxSignature = signature
		return Event{Kind: kind, Transfer: &e}, true, nil
	case EventWithdrawCompleted:
		var e WithdrawCompleted
		if err := json.Unmarshal(raw, &e); err != nil {
			return Event{}, false, fmt.Errorf("ledger: decode WithdrawCompleted: %w", err)
		}
		e.TxSignature = signature
		return Event{Kind: kind, Withdraw: &e}, true, nil
	default:
		return Event{}, false, nil
	}
}

// ValidateBase58Address checks that s decodes as base58 and is a plausible
// 32-byte public key, the shape Solana addresses and mints take.
func ValidateBase58Address(s string) error {
	b, err := base58.Decode(s)
	if err != nil {
		return apperr.Wrap(apperr.Validation, "invalid base58 address", err)
	}
	if len(b) != 32 {
		return apperr.New(apperr.Validation, fmt.Sprintf("address decodes to %d bytes, want 32", len(b)))
	}
	return nil
}
