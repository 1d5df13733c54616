// Package chain handles all interactions with the escrow contract's ledger:
// payment precondition checks, transaction submission, receipt resolution,
// and escrow state reads.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client abstracts the subset of go-ethereum's ethclient this package
// uses, so tests can substitute a fake ledger.
type Client interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Compile-time check that the real client satisfies the interface.
var _ Client = (*ethclient.Client)(nil)

// -----------------------------------------------------------------------------
// Errors - typed errors for programmatic handling
// -----------------------------------------------------------------------------

var (
	ErrRPCConnection   = errors.New("chain: RPC connection failed")
	ErrUserRejected    = errors.New("chain: transaction rejected by signer")
	ErrNotYetConfirmed = errors.New("chain: transaction not yet confirmed")
	ErrTxReverted      = errors.New("chain: transaction reverted")
	ErrNoMatchingEvent = errors.New("chain: no service request event in receipt")
	ErrDecodeLog       = errors.New("chain: malformed event log")
	ErrStateRead       = errors.New("chain: escrow state read failed")
)

// SubmitError wraps submission failures with the failing operation and,
// when the transaction was already signed, its hash for support/debugging.
type SubmitError struct {
	Op     string
	TxHash string
	Err    error
}

func (e *SubmitError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("chain: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("chain: %s failed: %v", e.Op, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Dial connects to the ledger RPC endpoint.
func Dial(rpcURL string) (Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
	}
	return client, nil
}
