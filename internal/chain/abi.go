package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// Escrow contract ABI, limited to the operations the engine submits and
// the single read the state reader performs. getRequest returns the
// escrow record as a fixed-layout tuple by positional offsets.
const escrowABIJSON = `[
	{"inputs":[{"name":"provider","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"requirements","type":"string"}],"name":"requestService","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[{"name":"requestId","type":"uint256"},{"name":"evidence","type":"string[]"},{"name":"notes","type":"string"}],"name":"submitWork","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"requestId","type":"uint256"}],"name":"releasePayment","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"requestId","type":"uint256"}],"name":"cancelRequest","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"requestId","type":"uint256"},{"name":"reason","type":"string"}],"name":"raiseDispute","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"requestId","type":"uint256"}],"name":"getRequest","outputs":[{"name":"completed","type":"bool"},{"name":"paymentReleased","type":"bool"},{"name":"disputed","type":"bool"},{"name":"autoReleaseAt","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"requestId","type":"uint256"},{"indexed":true,"name":"requester","type":"address"},{"indexed":true,"name":"provider","type":"address"}],"name":"ServiceRequested","type":"event"}
]`

// ERC20 minimal ABI for approve, balanceOf and allowance.
const erc20ABIJSON = `[
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

var (
	escrowABI = mustParseABI(escrowABIJSON)
	erc20ABI  = mustParseABI(erc20ABIJSON)

	// serviceRequestedSig is the topic hash of the payment-creation event.
	// Topics[1] carries the ledger-assigned request identifier.
	serviceRequestedSig = crypto.Keccak256Hash([]byte("ServiceRequested(uint256,address,address)"))
)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic("chain: invalid ABI: " + err.Error())
	}
	return parsed
}
