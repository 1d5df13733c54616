package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// EscrowRecord is the authoritative on-ledger state of one request.
// Flags only move false→true; the deadline is set once at creation.
// The off-chain booking record is a cache of a past read of this struct,
// never authoritative on its own.
type EscrowRecord struct {
	RequestID       uint64    `json:"requestId"`
	Completed       bool      `json:"completed"`
	PaymentReleased bool      `json:"paymentReleased"`
	Disputed        bool      `json:"disputed"`
	AutoReleaseAt   time.Time `json:"autoReleaseAt"`
}

// StateReader performs the read-only getRequest ledger call.
type StateReader struct {
	client     Client
	escrowAddr common.Address
}

// NewStateReader creates an escrow state reader.
func NewStateReader(client Client, escrowAddr common.Address) *StateReader {
	return &StateReader{client: client, escrowAddr: escrowAddr}
}

// ReadEscrow returns the escrow record for a request id. The call is
// idempotent and side-effect-free. On failure callers must treat any
// cached state as stale, not assume a fallback value.
func (s *StateReader) ReadEscrow(ctx context.Context, requestID uint64) (EscrowRecord, error) {
	data, err := escrowABI.Pack("getRequest", new(big.Int).SetUint64(requestID))
	if err != nil {
		return EscrowRecord{}, fmt.Errorf("%w: pack getRequest: %v", ErrStateRead, err)
	}

	out, err := s.client.CallContract(ctx, ethereum.CallMsg{
		To:   &s.escrowAddr,
		Data: data,
	}, nil)
	if err != nil {
		return EscrowRecord{}, fmt.Errorf("%w: getRequest(%d): %v", ErrStateRead, requestID, err)
	}

	vals, err := escrowABI.Unpack("getRequest", out)
	if err != nil || len(vals) != 4 {
		return EscrowRecord{}, fmt.Errorf("%w: decode getRequest(%d): %v", ErrStateRead, requestID, err)
	}

	completed, ok1 := vals[0].(bool)
	released, ok2 := vals[1].(bool)
	disputed, ok3 := vals[2].(bool)
	deadline, ok4 := vals[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return EscrowRecord{}, fmt.Errorf("%w: unexpected getRequest(%d) layout", ErrStateRead, requestID)
	}

	return EscrowRecord{
		RequestID:       requestID,
		Completed:       completed,
		PaymentReleased: released,
		Disputed:        disputed,
		AutoReleaseAt:   time.Unix(deadline.Int64(), 0).UTC(),
	}, nil
}
