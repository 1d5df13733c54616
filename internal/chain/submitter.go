package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultGasLimit is used when gas estimation fails.
const DefaultGasLimit = uint64(300000)

// Submitter broadcasts signed escrow operations to the ledger. Each
// method returns the transaction hash as soon as the broadcast is
// accepted; confirmation is the Resolver's responsibility.
type Submitter struct {
	client     Client
	escrowAddr common.Address
	chainID    *big.Int
}

// NewSubmitter creates a transaction submitter for the escrow contract.
func NewSubmitter(client Client, escrowAddr common.Address, chainID int64) *Submitter {
	return &Submitter{
		client:     client,
		escrowAddr: escrowAddr,
		chainID:    big.NewInt(chainID),
	}
}

// Authorize grants the escrow contract a spending allowance on an ERC-20
// token. Not applicable to the native method.
func (s *Submitter) Authorize(ctx context.Context, signer Signer, tokenAddr common.Address, amount *big.Int) (string, error) {
	data, err := erc20ABI.Pack("approve", s.escrowAddr, amount)
	if err != nil {
		return "", &SubmitError{Op: "authorize", Err: err}
	}
	return s.send(ctx, "authorize", signer, tokenAddr, big.NewInt(0), data)
}

// RequestService submits the payment transaction that creates the
// on-ledger escrow record. For the native method the amount rides as the
// transaction value; token payments spend the pre-authorized allowance.
func (s *Submitter) RequestService(ctx context.Context, signer Signer, provider, tokenAddr common.Address, amount *big.Int, requirements string) (string, error) {
	data, err := escrowABI.Pack("requestService", provider, tokenAddr, amount, requirements)
	if err != nil {
		return "", &SubmitError{Op: "request_service", Err: err}
	}
	value := big.NewInt(0)
	if tokenAddr == (common.Address{}) {
		value = amount
	}
	return s.send(ctx, "request_service", signer, s.escrowAddr, value, data)
}

// SubmitWork records completion evidence for a request.
func (s *Submitter) SubmitWork(ctx context.Context, signer Signer, requestID uint64, evidence []string, notes string) (string, error) {
	data, err := escrowABI.Pack("submitWork", new(big.Int).SetUint64(requestID), evidence, notes)
	if err != nil {
		return "", &SubmitError{Op: "submit_work", Err: err}
	}
	return s.send(ctx, "submit_work", signer, s.escrowAddr, big.NewInt(0), data)
}

// ReleasePayment releases escrowed funds to the provider.
func (s *Submitter) ReleasePayment(ctx context.Context, signer Signer, requestID uint64) (string, error) {
	data, err := escrowABI.Pack("releasePayment", new(big.Int).SetUint64(requestID))
	if err != nil {
		return "", &SubmitError{Op: "release_payment", Err: err}
	}
	return s.send(ctx, "release_payment", signer, s.escrowAddr, big.NewInt(0), data)
}

// CancelRequest refunds a not-yet-completed request to the requester.
func (s *Submitter) CancelRequest(ctx context.Context, signer Signer, requestID uint64) (string, error) {
	data, err := escrowABI.Pack("cancelRequest", new(big.Int).SetUint64(requestID))
	if err != nil {
		return "", &SubmitError{Op: "cancel_request", Err: err}
	}
	return s.send(ctx, "cancel_request", signer, s.escrowAddr, big.NewInt(0), data)
}

// RaiseDispute marks a completed request as disputed before its deadline.
func (s *Submitter) RaiseDispute(ctx context.Context, signer Signer, requestID uint64, reason string) (string, error) {
	data, err := escrowABI.Pack("raiseDispute", new(big.Int).SetUint64(requestID), reason)
	if err != nil {
		return "", &SubmitError{Op: "raise_dispute", Err: err}
	}
	return s.send(ctx, "raise_dispute", signer, s.escrowAddr, big.NewInt(0), data)
}

// send builds, signs, and broadcasts a transaction without waiting for
// inclusion.
func (s *Submitter) send(ctx context.Context, op string, signer Signer, to common.Address, value *big.Int, data []byte) (string, error) {
	from := signer.Address()

	nonce, err := s.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", &SubmitError{Op: op, Err: err}
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", &SubmitError{Op: op, Err: err}
	}

	gasLimit, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		gasLimit = DefaultGasLimit
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)

	signedTx, err := signer.SignTx(tx, s.chainID)
	if err != nil {
		if errors.Is(err, ErrUserRejected) {
			return "", ErrUserRejected
		}
		return "", &SubmitError{Op: op, Err: err}
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return "", &SubmitError{Op: op, TxHash: signedTx.Hash().Hex(), Err: err}
	}

	return signedTx.Hash().Hex(), nil
}
