package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is the signing agent for outgoing transactions. Implementations
// may prompt a user; a declined prompt surfaces as ErrUserRejected.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// LocalSigner signs with an in-process private key.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSigner creates a signer from a hex private key (0x prefix optional).
func NewLocalSigner(privateKeyHex string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: invalid private key: %w", err)
	}
	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("chain: invalid private key: cannot derive public key")
	}
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(*pub),
	}, nil
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.NewEIP155Signer(chainID), s.key)
}

// Keyring resolves signers by address for in-process keys.
type Keyring struct {
	signers map[common.Address]Signer
}

// NewKeyring builds a keyring from the given signers.
func NewKeyring(signers ...Signer) *Keyring {
	k := &Keyring{signers: make(map[common.Address]Signer, len(signers))}
	for _, s := range signers {
		k.signers[s.Address()] = s
	}
	return k
}

// Add registers a signer, replacing any existing one for the same address.
func (k *Keyring) Add(s Signer) {
	k.signers[s.Address()] = s
}

// SignerFor returns the signer holding addr's key, if any.
func (k *Keyring) SignerFor(addr common.Address) (Signer, bool) {
	s, ok := k.signers[addr]
	return s, ok
}
