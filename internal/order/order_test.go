package order

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/ArbMon-Fusion/dca-engine/config"
	"github.com/ArbMon-Fusion/dca-engine/internal/chain"
	"github.com/ArbMon-Fusion/dca-engine/internal/types"
)

func testBuilderConfig() config.Config {
	var cfg config.Config
	cfg.SourceChain = config.ChainConfig{
		ChainID:            421614,
		Token:              "0x1000000000000000000000000000000000000001",
		Resolver:           "0x2000000000000000000000000000000000000002",
		LimitOrderProtocol: "0x3000000000000000000000000000000000000003",
	}
	cfg.DestChain = config.ChainConfig{
		ChainID:            10143,
		Token:              "0x4000000000000000000000000000000000000004",
		Resolver:           "0x5000000000000000000000000000000000000005",
		LimitOrderProtocol: "0x6000000000000000000000000000000000000006",
	}
	cfg.Swap.Rate = "0.9"
	cfg.Swap.SafetyDeposit = "0.0001"
	return cfg
}

var maker = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

func TestBuildAppliesFixedRate(t *testing.T) {
	b := NewBuilder(testBuilderConfig())

	o, err := b.Build(maker, "0.01", types.DirectionSrcToDst)
	require.NoError(t, err)
	require.Equal(t, "10000000000000000", o.MakingAmount)
	require.Equal(t, "9000000000000000", o.TakingAmount)
	require.Equal(t, int64(421614), o.SrcChainID)
	require.Equal(t, int64(10143), o.DstChainID)
	require.Equal(t, testBuilderConfig().SourceChain.Token, o.MakerAsset)
	require.Equal(t, testBuilderConfig().DestChain.Token, o.TakerAsset)
	require.Equal(t, "100000000000000", o.SrcSafetyDeposit)
}

func TestBuildReverseDirectionInvertsRate(t *testing.T) {
	b := NewBuilder(testBuilderConfig())

	o, err := b.Build(maker, "0.009", types.DirectionDstToSrc)
	require.NoError(t, err)
	require.Equal(t, "9000000000000000", o.MakingAmount)
	require.Equal(t, "10000000000000000", o.TakingAmount)
	require.Equal(t, int64(10143), o.SrcChainID)
	require.Equal(t, int64(421614), o.DstChainID)
	// source chain swaps to the destination config on the reverse leg
	require.Equal(t, testBuilderConfig().DestChain.Token, o.MakerAsset)
}

func TestBuildRejectsNonPositiveAmount(t *testing.T) {
	b := NewBuilder(testBuilderConfig())

	_, err := b.Build(maker, "0", types.DirectionSrcToDst)
	require.Error(t, err)
	_, err = b.Build(maker, "-1", types.DirectionSrcToDst)
	require.Error(t, err)
}

func TestBuildHashLockIsKeccakOfSecret(t *testing.T) {
	b := NewBuilder(testBuilderConfig())

	o, err := b.Build(maker, "0.01", types.DirectionSrcToDst)
	require.NoError(t, err)

	secret, err := hexutil.Decode(o.Secret)
	require.NoError(t, err)
	require.Len(t, secret, 32)
	require.Equal(t, crypto.Keccak256Hash(secret).Hex(), o.HashLock)
}

func TestBuildGeneratesFreshSecrets(t *testing.T) {
	b := NewBuilder(testBuilderConfig())

	first, err := b.Build(maker, "0.01", types.DirectionSrcToDst)
	require.NoError(t, err)
	second, err := b.Build(maker, "0.01", types.DirectionSrcToDst)
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)
	require.NotEqual(t, first.HashLock, second.HashLock)
}

func TestHashIsDeterministic(t *testing.T) {
	o := &types.SignedOrder{
		Maker:        maker.Hex(),
		MakerAsset:   "0x1000000000000000000000000000000000000001",
		TakerAsset:   "0x4000000000000000000000000000000000000004",
		MakingAmount: "10000000000000000",
		TakingAmount: "9000000000000000",
		Salt:         "42",
		Nonce:        "7",
	}
	lop := common.HexToAddress("0x3000000000000000000000000000000000000003")

	h1, err := Hash(o, 421614, lop)
	require.NoError(t, err)
	h2, err := Hash(o, 421614, lop)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	// a different salt or chain changes the digest
	o2 := *o
	o2.Salt = "43"
	h3, err := Hash(&o2, 421614, lop)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)

	h4, err := Hash(o, 10143, lop)
	require.NoError(t, err)
	require.NotEqual(t, h1, h4)
}

func TestSignFillsSignatureAndHash(t *testing.T) {
	b := NewBuilder(testBuilderConfig())
	signer, err := chain.NewLocalSigner("0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d")
	require.NoError(t, err)

	o, err := b.Build(signer.Address(), "0.01", types.DirectionSrcToDst)
	require.NoError(t, err)
	require.NoError(t, b.Sign(o, signer))

	require.NotEmpty(t, o.Signature)
	require.NotEmpty(t, o.OrderHash)
	require.Equal(t, int64(421614), o.ChainID)

	sig, err := hexutil.Decode(o.Signature)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.Contains(t, []byte{27, 28}, sig[64])
}

func TestPackUnpackTimeLocksRoundTrip(t *testing.T) {
	tl := DefaultTimeLocks()
	deployedAt := uint32(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Unix())

	packed := PackTimeLocks(tl, deployedAt)
	got, gotDeployed := UnpackTimeLocks(packed)
	require.Equal(t, tl, got)
	require.Equal(t, deployedAt, gotDeployed)
}

func TestPackTimeLocksLaneLayout(t *testing.T) {
	tl := types.TimeLocks{
		SrcWithdrawal:       10,
		SrcPublicWithdrawal: 120,
		SrcCancellation:     121,
		SrcPublicCancel:     122,
		DstWithdrawal:       10,
		DstPublicWithdrawal: 100,
		DstCancellation:     101,
	}
	packed := PackTimeLocks(tl, 0)

	mask := big.NewInt(0xFFFFFFFF)
	lane := func(i uint) int64 {
		return new(big.Int).And(new(big.Int).Rsh(packed, 32*i), mask).Int64()
	}
	require.Equal(t, int64(10), lane(0))
	require.Equal(t, int64(120), lane(1))
	require.Equal(t, int64(121), lane(2))
	require.Equal(t, int64(122), lane(3))
	require.Equal(t, int64(10), lane(4))
	require.Equal(t, int64(100), lane(5))
	require.Equal(t, int64(101), lane(6))
	require.Equal(t, int64(0), lane(7))
}
