package sigutil

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// RecoverSigner recovers the address that produced a 65-byte signature over
// the given digest. Accepts both 0/1 and 27/28 recovery ids.
func RecoverSigner(digest common.Hash, sigHex string) (common.Address, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}

	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySigner checks that the signature over digest was produced by the
// expected address.
func VerifySigner(digest common.Hash, sigHex string, expected common.Address) error {
	recovered, err := RecoverSigner(digest, sigHex)
	if err != nil {
		return err
	}
	if !bytes.Equal(recovered.Bytes(), expected.Bytes()) {
		return fmt.Errorf("signature signed by %s, expected %s", recovered.Hex(), expected.Hex())
	}
	return nil
}
