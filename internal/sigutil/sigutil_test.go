package sigutil

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestRecoverSignerRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	digest := crypto.Keccak256Hash([]byte("order digest"))
	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)

	recovered, err := RecoverSigner(digest, hexutil.Encode(sig))
	require.NoError(t, err)
	require.Equal(t, addr, recovered)

	// wallet-style signatures carry v in 27/28 form
	sig[64] += 27
	recovered, err = RecoverSigner(digest, hexutil.Encode(sig))
	require.NoError(t, err)
	require.Equal(t, addr, recovered)
}

func TestVerifySignerRejectsWrongAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	digest := crypto.Keccak256Hash([]byte("order digest"))
	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)

	err = VerifySigner(digest, hexutil.Encode(sig), crypto.PubkeyToAddress(other.PublicKey))
	require.Error(t, err)

	require.NoError(t, VerifySigner(digest, hexutil.Encode(sig), crypto.PubkeyToAddress(key.PublicKey)))
}

func TestRecoverSignerRejectsMalformedInput(t *testing.T) {
	digest := crypto.Keccak256Hash([]byte("x"))

	_, err := RecoverSigner(digest, "not-hex")
	require.Error(t, err)

	_, err = RecoverSigner(digest, "0x1234")
	require.Error(t, err)
}
