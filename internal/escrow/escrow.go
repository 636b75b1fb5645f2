package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ArbMon-Fusion/dca-engine/internal/swaperr"
)

// Immutables is the escrow identity tuple. keccak256 of its ABI encoding is
// both the CREATE2 salt and the key the escrow contract validates calls
// against, so every field must match the on-chain deployment exactly.
type Immutables struct {
	OrderHash     common.Hash
	HashLock      common.Hash
	Maker         common.Address
	Taker         common.Address
	Token         common.Address
	Amount        *big.Int
	SafetyDeposit *big.Int
	TimeLocks     *big.Int // packed stage offsets, deployedAt in the top lane
}

// Complement carries the destination-side parameters emitted alongside the
// source escrow deployment.
type Complement struct {
	Maker         common.Address
	Amount        *big.Int
	Token         common.Address
	SafetyDeposit *big.Int
	ChainID       *big.Int
}

// WithComplement rebuilds the destination-side immutables from the source
// immutables and the emitted complement. Order hash, hash lock and
// time-locks carry over unchanged.
func (im Immutables) WithComplement(c Complement) Immutables {
	out := im
	out.Maker = c.Maker
	out.Amount = new(big.Int).Set(c.Amount)
	out.Token = c.Token
	out.SafetyDeposit = new(big.Int).Set(c.SafetyDeposit)
	return out
}

// WithTaker returns a copy with the taker replaced.
func (im Immutables) WithTaker(taker common.Address) Immutables {
	out := im
	out.Taker = taker
	return out
}

// WithDeployedAt returns a copy with the deployment timestamp written into
// the top time-lock lane. All stage offsets are preserved.
func (im Immutables) WithDeployedAt(deployedAt uint32) Immutables {
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 224), big.NewInt(1))
	tl := new(big.Int).And(im.TimeLocks, mask)
	tl.Or(tl, new(big.Int).Lsh(big.NewInt(int64(deployedAt)), 224))
	out := im
	out.TimeLocks = tl
	return out
}

// SrcCancellationTimestamp is the absolute deadline after which the source
// escrow becomes cancellable: deployedAt plus the src-cancellation offset.
func (im Immutables) SrcCancellationTimestamp() *big.Int {
	deployedAt := new(big.Int).Rsh(im.TimeLocks, 224)
	offset := new(big.Int).And(
		new(big.Int).Rsh(im.TimeLocks, 64),
		big.NewInt(0xFFFFFFFF),
	)
	return new(big.Int).Add(deployedAt, offset)
}

var immutablesArgs = abi.Arguments{
	{Type: mustType("bytes32")}, // orderHash
	{Type: mustType("bytes32")}, // hashlock
	{Type: mustType("uint256")}, // maker
	{Type: mustType("uint256")}, // taker
	{Type: mustType("uint256")}, // token
	{Type: mustType("uint256")}, // amount
	{Type: mustType("uint256")}, // safetyDeposit
	{Type: mustType("uint256")}, // timelocks
}

// Hash is keccak256 of the ABI-encoded tuple, as the factory computes it.
// Addresses are widened to uint256 to match the contract's Address type.
func (im Immutables) Hash() (common.Hash, error) {
	packed, err := immutablesArgs.Pack(
		[32]byte(im.OrderHash),
		[32]byte(im.HashLock),
		addrToBig(im.Maker),
		addrToBig(im.Taker),
		addrToBig(im.Token),
		im.Amount,
		im.SafetyDeposit,
		im.TimeLocks,
	)
	if err != nil {
		return common.Hash{}, swaperr.Wrap(swaperr.KindChain, "escrow.Hash", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// minimal-proxy (ERC-1167) creation bytecode split around the implementation
var (
	proxyPrefix = common.Hex2Bytes("3d602d80600a3d3981f3363d3d373d3d3d363d73")
	proxySuffix = common.Hex2Bytes("5af43d82803e903d91602b57fd5bf3")
)

// ProxyInitCodeHash is keccak256 of the ERC-1167 creation code pointing at
// the given escrow implementation.
func ProxyInitCodeHash(implementation common.Address) common.Hash {
	code := make([]byte, 0, len(proxyPrefix)+20+len(proxySuffix))
	code = append(code, proxyPrefix...)
	code = append(code, implementation.Bytes()...)
	code = append(code, proxySuffix...)
	return crypto.Keccak256Hash(code)
}

// Address derives the escrow clone address the factory will deploy for these
// immutables via CREATE2.
func (im Immutables) Address(factory, implementation common.Address) (common.Address, error) {
	salt, err := im.Hash()
	if err != nil {
		return common.Address{}, err
	}
	initCodeHash := ProxyInitCodeHash(implementation)
	return crypto.CreateAddress2(factory, salt, initCodeHash.Bytes()), nil
}

func addrToBig(a common.Address) *big.Int {
	return new(big.Int).SetBytes(a.Bytes())
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}
