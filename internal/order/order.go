package order

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/ArbMon-Fusion/dca-engine/config"
	"github.com/ArbMon-Fusion/dca-engine/internal/swaperr"
	"github.com/ArbMon-Fusion/dca-engine/internal/types"
)

// Protocol-mandated time-lock offsets, in seconds relative to escrow
// deployment. These mirror the deployed escrow contracts and are not
// user-configurable.
func DefaultTimeLocks() types.TimeLocks {
	return types.TimeLocks{
		SrcWithdrawal:       10,
		SrcPublicWithdrawal: 120,
		SrcCancellation:     121,
		SrcPublicCancel:     122,
		DstWithdrawal:       10,
		DstPublicWithdrawal: 100,
		DstCancellation:     101,
	}
}

const auctionDuration = 240 // seconds

var uint40Max = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 40), big.NewInt(1))

// Builder constructs unsigned cross-chain orders: amounts from the fixed
// exchange rate, a fresh hash-locked secret and the protocol time-locks.
type Builder struct {
	cfg  config.Config
	rand io.Reader
	now  func() time.Time
}

func NewBuilder(cfg config.Config) *Builder {
	return &Builder{
		cfg:  cfg,
		rand: rand.Reader,
		now:  time.Now,
	}
}

// Build creates the order bundle for the given maker and source amount.
// Signature, OrderHash and ChainID are filled by Sign.
func (b *Builder) Build(maker common.Address, amount string, dir types.Direction) (*types.SignedOrder, error) {
	if !types.IsPositiveDecimal(amount) {
		return nil, swaperr.New(swaperr.KindConfig, "swap amount must be positive, got %q", amount)
	}

	makingWei, err := types.ToWei(amount)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindConfig, "order.Build", err)
	}

	takingAmount, err := b.takingAmount(amount, dir)
	if err != nil {
		return nil, err
	}
	takingWei, err := types.ToWei(takingAmount)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindConfig, "order.Build", err)
	}

	secret := make([]byte, 32)
	if _, err := io.ReadFull(b.rand, secret); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	hashLock := crypto.Keccak256Hash(secret)

	salt, err := randBig(b.rand, big.NewInt(1000))
	if err != nil {
		return nil, err
	}
	nonce, err := randBig(b.rand, uint40Max)
	if err != nil {
		return nil, err
	}

	src, dst := b.cfg.SourceChain, b.cfg.DestChain
	if dir == types.DirectionDstToSrc {
		src, dst = dst, src
	}

	depositWei, err := types.ToWei(b.cfg.Swap.SafetyDeposit)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindConfig, "order.Build", err)
	}

	o := &types.SignedOrder{
		Maker:            maker.Hex(),
		MakerAsset:       src.Token,
		TakerAsset:       dst.Token,
		MakingAmount:     makingWei.String(),
		TakingAmount:     takingWei.String(),
		Salt:             salt.String(),
		Nonce:            nonce.String(),
		HashLock:         hashLock.Hex(),
		TimeLocks:        DefaultTimeLocks(),
		SrcChainID:       src.ChainID,
		DstChainID:       dst.ChainID,
		SrcSafetyDeposit: depositWei.String(),
		DstSafetyDeposit: depositWei.String(),
		AuctionDuration:  auctionDuration,
		AuctionStartTime: b.now().Unix(),
		ResolverAddress:  src.Resolver,
		Direction:        dir,
		Secret:           hexutil.Encode(secret),
	}
	o.ExtensionData = hexutil.Encode(extensionData(o))
	return o, nil
}

// takingAmount applies the fixed rate: dst per src going forward, the
// inverse on the reverse direction.
func (b *Builder) takingAmount(amount string, dir types.Direction) (string, error) {
	switch dir {
	case types.DirectionSrcToDst:
		out, err := types.MulDecimal(amount, b.cfg.Swap.Rate)
		if err != nil {
			return "", swaperr.Wrap(swaperr.KindConfig, "order.takingAmount", err)
		}
		return out, nil
	case types.DirectionDstToSrc:
		out, err := types.DivDecimal(amount, b.cfg.Swap.Rate)
		if err != nil {
			return "", swaperr.Wrap(swaperr.KindConfig, "order.takingAmount", err)
		}
		return out, nil
	default:
		return "", swaperr.New(swaperr.KindConfig, "unknown swap direction: %q", dir)
	}
}

// Sign produces the EIP-712 signature over the order with the maker's
// wallet and stamps the deterministic order hash.
func (b *Builder) Sign(o *types.SignedOrder, signer interface {
	SignTypedData(apitypes.TypedData) ([]byte, error)
}) error {
	lop := b.cfg.SourceChain.LimitOrderProtocol
	chainID := b.cfg.SourceChain.ChainID
	if o.Direction == types.DirectionDstToSrc {
		lop = b.cfg.DestChain.LimitOrderProtocol
		chainID = b.cfg.DestChain.ChainID
	}

	hash, err := Hash(o, chainID, common.HexToAddress(lop))
	if err != nil {
		return err
	}

	td, err := TypedData(o, chainID, common.HexToAddress(lop))
	if err != nil {
		return err
	}
	sig, err := signer.SignTypedData(td)
	if err != nil {
		return swaperr.Wrap(swaperr.KindConfig, "order.Sign", err)
	}

	o.Signature = hexutil.Encode(sig)
	o.OrderHash = hash.Hex()
	o.ChainID = chainID
	return nil
}

// TypedData renders the order as EIP-712 typed data for wallet signing.
func TypedData(o *types.SignedOrder, chainID int64, verifyingContract common.Address) (apitypes.TypedData, error) {
	salt, ok := new(big.Int).SetString(o.Salt, 10)
	if !ok {
		return apitypes.TypedData{}, swaperr.New(swaperr.KindConfig, "invalid order salt: %q", o.Salt)
	}
	nonce, ok := new(big.Int).SetString(o.Nonce, 10)
	if !ok {
		return apitypes.TypedData{}, swaperr.New(swaperr.KindConfig, "invalid order nonce: %q", o.Nonce)
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "makerAsset", Type: "address"},
				{Name: "takerAsset", Type: "address"},
				{Name: "makingAmount", Type: "uint256"},
				{Name: "takingAmount", Type: "uint256"},
				{Name: "makerTraits", Type: "uint256"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              "Limit Order Protocol",
			Version:           "4",
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: verifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"salt":         salt.String(),
			"maker":        o.Maker,
			"makerAsset":   o.MakerAsset,
			"takerAsset":   o.TakerAsset,
			"makingAmount": o.MakingAmount,
			"takingAmount": o.TakingAmount,
			"makerTraits":  nonce.String(),
		},
	}, nil
}

// Hash is the deterministic EIP-712 digest of the order for the given
// chain. Identical inputs always produce identical hashes.
func Hash(o *types.SignedOrder, chainID int64, verifyingContract common.Address) (common.Hash, error) {
	td, err := TypedData(o, chainID, verifyingContract)
	if err != nil {
		return common.Hash{}, err
	}
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash order: %w", err)
	}
	return common.BytesToHash(digest), nil
}

// extensionData packs the escrow parameters the resolver forwards on-chain
// with the fill: hash lock, packed time-locks and both safety deposits.
func extensionData(o *types.SignedOrder) []byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, common.HexToHash(o.HashLock).Bytes()...)
	buf = append(buf, common.BigToHash(PackTimeLocks(o.TimeLocks, 0)).Bytes()...)

	src, _ := new(big.Int).SetString(o.SrcSafetyDeposit, 10)
	if src == nil {
		src = big.NewInt(0)
	}
	dst, _ := new(big.Int).SetString(o.DstSafetyDeposit, 10)
	if dst == nil {
		dst = big.NewInt(0)
	}
	buf = append(buf, common.BigToHash(src).Bytes()...)
	buf = append(buf, common.BigToHash(dst).Bytes()...)
	return buf
}

// PackTimeLocks packs the seven stage offsets into 32-bit lanes with the
// deployment timestamp in the top lane, matching the contract layout.
func PackTimeLocks(tl types.TimeLocks, deployedAt uint32) *big.Int {
	stages := []uint32{
		tl.SrcWithdrawal,
		tl.SrcPublicWithdrawal,
		tl.SrcCancellation,
		tl.SrcPublicCancel,
		tl.DstWithdrawal,
		tl.DstPublicWithdrawal,
		tl.DstCancellation,
	}
	packed := new(big.Int)
	for i, v := range stages {
		packed.Or(packed, new(big.Int).Lsh(big.NewInt(int64(v)), uint(32*i)))
	}
	packed.Or(packed, new(big.Int).Lsh(big.NewInt(int64(deployedAt)), 224))
	return packed
}

// UnpackTimeLocks reverses PackTimeLocks, returning the stage offsets and
// the deployment timestamp lane.
func UnpackTimeLocks(packed *big.Int) (types.TimeLocks, uint32) {
	mask := big.NewInt(0xFFFFFFFF)
	lane := func(i uint) uint32 {
		v := new(big.Int).And(new(big.Int).Rsh(packed, 32*i), mask)
		return uint32(v.Uint64())
	}
	tl := types.TimeLocks{
		SrcWithdrawal:       lane(0),
		SrcPublicWithdrawal: lane(1),
		SrcCancellation:     lane(2),
		SrcPublicCancel:     lane(3),
		DstWithdrawal:       lane(4),
		DstPublicWithdrawal: lane(5),
		DstCancellation:     lane(6),
	}
	return tl, lane(7)
}

func randBig(r io.Reader, max *big.Int) (*big.Int, error) {
	n, err := rand.Int(r, new(big.Int).Add(max, big.NewInt(1)))
	if err != nil {
		return nil, fmt.Errorf("failed to generate random value: %w", err)
	}
	return n, nil
}

// SecretBytes decodes the stored hash-lock preimage.
func SecretBytes(o *types.SignedOrder) ([]byte, error) {
	secret, err := hexutil.Decode(o.Secret)
	if err != nil {
		// Tolerate un-prefixed hex from older bundles.
		secret, err = hex.DecodeString(o.Secret)
		if err != nil {
			return nil, swaperr.New(swaperr.KindConfig, "invalid order secret")
		}
	}
	if len(secret) != 32 {
		return nil, swaperr.New(swaperr.KindConfig, "order secret must be 32 bytes, got %d", len(secret))
	}
	return secret, nil
}
