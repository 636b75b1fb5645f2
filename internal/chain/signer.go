package chain

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer is the wallet capability: it can report its address and sign
// EIP-712 typed data. Order signing at investment-creation time is the only
// place it is needed.
type Signer interface {
	Address() common.Address
	SignTypedData(data apitypes.TypedData) ([]byte, error)
}

// LocalSigner signs with an in-process secp256k1 key. Used for the resolver
// wallet and for the one-shot dev swap flow; real user signatures arrive
// from the wallet frontend already made.
type LocalSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func NewLocalSigner(privateKeyHex string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &LocalSigner{
		key:  key,
		addr: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *LocalSigner) Address() common.Address {
	return s.addr
}

func (s *LocalSigner) SignTypedData(data apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}

	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

var _ Signer = (*LocalSigner)(nil)
