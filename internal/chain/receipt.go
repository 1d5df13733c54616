package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// ReceiptPollInterval between receipt checks while waiting for inclusion.
const ReceiptPollInterval = 2 * time.Second

// Resolver recovers the ledger-assigned request identifier from a payment
// transaction's confirmation receipt. This is the only sanctioned way to
// learn a request id — booking identifiers and request identifiers are
// independent namespaces.
type Resolver struct {
	client     Client
	escrowAddr common.Address
}

// NewResolver creates a receipt resolver for the escrow contract.
func NewResolver(client Client, escrowAddr common.Address) *Resolver {
	return &Resolver{client: client, escrowAddr: escrowAddr}
}

// RequestID fetches the receipt for txHash and extracts the request id
// from the ServiceRequested event. Returns ErrNotYetConfirmed while the
// transaction is pending; callers should retry with backoff.
func (r *Resolver) RequestID(ctx context.Context, txHash string) (uint64, error) {
	receipt, err := r.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return 0, ErrNotYetConfirmed
		}
		return 0, fmt.Errorf("%w: receipt for %s: %v", ErrStateRead, txHash, err)
	}

	// A reverted call emits no creation event.
	if receipt.Status == 0 {
		return 0, fmt.Errorf("%w: tx %s reverted", ErrNoMatchingEvent, txHash)
	}

	for _, vLog := range receipt.Logs {
		if vLog.Address != r.escrowAddr {
			continue
		}
		if len(vLog.Topics) == 0 || vLog.Topics[0] != serviceRequestedSig {
			continue
		}
		// Topics[1] = request id (indexed uint256)
		if len(vLog.Topics) < 2 {
			return 0, fmt.Errorf("%w: ServiceRequested log in %s missing request id topic", ErrDecodeLog, txHash)
		}
		id := vLog.Topics[1].Big()
		if !id.IsUint64() {
			return 0, fmt.Errorf("%w: request id out of range in %s", ErrDecodeLog, txHash)
		}
		return id.Uint64(), nil
	}

	return 0, fmt.Errorf("%w: tx %s", ErrNoMatchingEvent, txHash)
}

// Confirm waits for txHash to land and reports whether it executed.
// Returns ErrTxReverted when the ledger rejected the state change, so
// callers can undo any provisional record the broadcast produced.
func (r *Resolver) Confirm(ctx context.Context, txHash string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := r.client.TransactionReceipt(ctx, common.HexToHash(txHash))
		if err == nil {
			if receipt.Status == 0 {
				return fmt.Errorf("%w: tx %s", ErrTxReverted, txHash)
			}
			return nil
		}
		// Pending and transient RPC failures alike: keep polling
		// until the timeout bounds the wait.

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: timed out waiting for %s", ErrNotYetConfirmed, txHash)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitForRequestID polls RequestID until the transaction confirms, the
// timeout elapses, or ctx is cancelled. Abandoning the wait never affects
// the in-flight transaction.
func (r *Resolver) WaitForRequestID(ctx context.Context, txHash string, timeout time.Duration) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(ReceiptPollInterval)
	defer ticker.Stop()

	for {
		id, err := r.RequestID(ctx, txHash)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrNotYetConfirmed) && !errors.Is(err, ErrStateRead) {
			return 0, err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return 0, fmt.Errorf("%w: timed out waiting for %s", ErrNotYetConfirmed, txHash)
			}
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}
