package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/token"
)

// PrecheckResult classifies whether a payer can satisfy a price with a
// given payment method. It is derived on demand and never persisted;
// an authorize transaction invalidates any earlier result.
type PrecheckResult struct {
	Payable            bool     `json:"payable"`
	NeedsAuthorization bool     `json:"needsAuthorization"`
	Balance            *big.Int `json:"balance"`
	Required           *big.Int `json:"required"`
	Allowance          *big.Int `json:"allowance"` // nil for the native method
	Err                error    `json:"-"`
}

// Checker reads balances and spending allowances from the ledger.
type Checker struct {
	client     Client
	escrowAddr common.Address
}

// NewChecker creates a payment precondition checker. escrowAddr is the
// escrow contract that must be authorized to spend token payments.
func NewChecker(client Client, escrowAddr common.Address) *Checker {
	return &Checker{client: client, escrowAddr: escrowAddr}
}

// Check determines whether payer can pay the required amount with the
// given method. Read failures yield a result carrying Err — never a
// silent default to payable.
func (c *Checker) Check(ctx context.Context, payer common.Address, method token.Method, required *big.Int) PrecheckResult {
	if required == nil || required.Sign() <= 0 {
		return PrecheckResult{Required: required, Err: fmt.Errorf("chain: required amount must be positive")}
	}

	if method.IsNative() {
		balance, err := c.client.BalanceAt(ctx, payer, nil)
		if err != nil {
			return PrecheckResult{Required: required, Err: fmt.Errorf("%w: balance read: %v", ErrStateRead, err)}
		}
		return PrecheckResult{
			Payable:  balance.Cmp(required) >= 0,
			Balance:  balance,
			Required: required,
		}
	}

	balance, err := c.erc20Read(ctx, method.Address, "balanceOf", payer)
	if err != nil {
		return PrecheckResult{Required: required, Err: fmt.Errorf("%w: balanceOf: %v", ErrStateRead, err)}
	}

	allowance, err := c.erc20Read(ctx, method.Address, "allowance", payer, c.escrowAddr)
	if err != nil {
		return PrecheckResult{Required: required, Err: fmt.Errorf("%w: allowance: %v", ErrStateRead, err)}
	}

	res := PrecheckResult{
		Balance:   balance,
		Required:  required,
		Allowance: allowance,
	}
	switch {
	case balance.Cmp(required) < 0:
		// Insufficient funds regardless of allowance.
	case allowance.Cmp(required) < 0:
		res.NeedsAuthorization = true
	default:
		res.Payable = true
	}
	return res
}

func (c *Checker) erc20Read(ctx context.Context, contract common.Address, method string, args ...interface{}) (*big.Int, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(out), nil
}
