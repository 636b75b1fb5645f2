package swap

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/ArbMon-Fusion/dca-engine/config"
	"github.com/ArbMon-Fusion/dca-engine/internal/chain"
	"github.com/ArbMon-Fusion/dca-engine/internal/escrow"
	"github.com/ArbMon-Fusion/dca-engine/internal/order"
	"github.com/ArbMon-Fusion/dca-engine/internal/swaperr"
	"github.com/ArbMon-Fusion/dca-engine/internal/types"
)

const resolverABIJSON = `[
	{"name": "deploySrc", "type": "function", "stateMutability": "payable",
		"inputs": [
			{"components": [
				{"name": "orderHash", "type": "bytes32"},
				{"name": "hashlock", "type": "bytes32"},
				{"name": "maker", "type": "uint256"},
				{"name": "taker", "type": "uint256"},
				{"name": "token", "type": "uint256"},
				{"name": "amount", "type": "uint256"},
				{"name": "safetyDeposit", "type": "uint256"},
				{"name": "timelocks", "type": "uint256"}
			], "name": "immutables", "type": "tuple"},
			{"components": [
				{"name": "salt", "type": "uint256"},
				{"name": "maker", "type": "uint256"},
				{"name": "receiver", "type": "uint256"},
				{"name": "makerAsset", "type": "uint256"},
				{"name": "takerAsset", "type": "uint256"},
				{"name": "makingAmount", "type": "uint256"},
				{"name": "takingAmount", "type": "uint256"},
				{"name": "makerTraits", "type": "uint256"}
			], "name": "order", "type": "tuple"},
			{"name": "r", "type": "bytes32"},
			{"name": "vs", "type": "bytes32"},
			{"name": "amount", "type": "uint256"},
			{"name": "takerTraits", "type": "uint256"},
			{"name": "args", "type": "bytes"}
		],
		"outputs": []},
	{"name": "deployDst", "type": "function", "stateMutability": "payable",
		"inputs": [
			{"components": [
				{"name": "orderHash", "type": "bytes32"},
				{"name": "hashlock", "type": "bytes32"},
				{"name": "maker", "type": "uint256"},
				{"name": "taker", "type": "uint256"},
				{"name": "token", "type": "uint256"},
				{"name": "amount", "type": "uint256"},
				{"name": "safetyDeposit", "type": "uint256"},
				{"name": "timelocks", "type": "uint256"}
			], "name": "dstImmutables", "type": "tuple"},
			{"name": "srcCancellationTimestamp", "type": "uint256"}
		],
		"outputs": []},
	{"name": "withdraw", "type": "function", "stateMutability": "nonpayable",
		"inputs": [
			{"name": "escrow", "type": "address"},
			{"name": "secret", "type": "bytes32"},
			{"components": [
				{"name": "orderHash", "type": "bytes32"},
				{"name": "hashlock", "type": "bytes32"},
				{"name": "maker", "type": "uint256"},
				{"name": "taker", "type": "uint256"},
				{"name": "token", "type": "uint256"},
				{"name": "amount", "type": "uint256"},
				{"name": "safetyDeposit", "type": "uint256"},
				{"name": "timelocks", "type": "uint256"}
			], "name": "immutables", "type": "tuple"}
		],
		"outputs": []}
]`

var resolverABI = mustABI(resolverABIJSON)

// immutablesTuple mirrors the contract struct. Address fields are widened
// to uint256 as the contract's Address type encodes them.
type immutablesTuple struct {
	OrderHash     [32]byte
	Hashlock      [32]byte
	Maker         *big.Int
	Taker         *big.Int
	Token         *big.Int
	Amount        *big.Int
	SafetyDeposit *big.Int
	Timelocks     *big.Int
}

type orderTuple struct {
	Salt         *big.Int
	Maker        *big.Int
	Receiver     *big.Int
	MakerAsset   *big.Int
	TakerAsset   *big.Int
	MakingAmount *big.Int
	TakingAmount *big.Int
	MakerTraits  *big.Int
}

// Result carries everything a history record needs from one execution,
// including which withdrawal sides completed when the run died part-way.
type Result struct {
	SrcEscrowTx    string
	DstEscrowTx    string
	DstWithdrawTx  string
	SrcWithdrawTx  string
	SrcEscrow      string
	DstEscrow      string
	WithdrawnSides []types.WithdrawSide
}

// Driver runs phases two through four of a swap: source escrow deployment,
// destination escrow deployment, then the paired withdrawals. Phase one,
// order creation and signing, happens once at investment-creation time.
type Driver struct {
	clients       map[int64]chain.Client
	chains        map[int64]config.ChainConfig
	finalityDelay time.Duration
	gasLimit      uint64
	logger        *logrus.Logger

	// sleep is replaceable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDriver(cfg config.Config, src, dst chain.Client, logger *logrus.Logger) *Driver {
	return &Driver{
		clients: map[int64]chain.Client{
			cfg.SourceChain.ChainID: src,
			cfg.DestChain.ChainID:   dst,
		},
		chains: map[int64]config.ChainConfig{
			cfg.SourceChain.ChainID: cfg.SourceChain,
			cfg.DestChain.ChainID:   cfg.DestChain,
		},
		finalityDelay: time.Duration(cfg.Swap.FinalityDelaySeconds) * time.Second,
		gasLimit:      cfg.Swap.GasLimit,
		logger:        logger,
		sleep:         sleepCtx,
	}
}

// Execute runs one full swap from a pre-signed order bundle. Failures
// return the partial Result so the caller can record which transactions
// and withdrawal sides completed.
func (d *Driver) Execute(ctx context.Context, o *types.SignedOrder) (*Result, error) {
	res := &Result{}

	srcClient, srcChain, err := d.chainFor(o.SrcChainID)
	if err != nil {
		return res, err
	}
	dstClient, dstChain, err := d.chainFor(o.DstChainID)
	if err != nil {
		return res, err
	}

	log := d.logger.WithFields(logrus.Fields{
		"order_hash": o.OrderHash,
		"src_chain":  o.SrcChainID,
		"dst_chain":  o.DstChainID,
	})

	// phase 2: deploy the source escrow and recover its canonical identity
	// from the factory event
	srcIm, complement, srcDeployedAt, err := d.deploySrc(ctx, srcClient, srcChain, o, res)
	if err != nil {
		return res, err
	}
	srcIm = srcIm.WithDeployedAt(srcDeployedAt)
	log.WithFields(logrus.Fields{
		"tx":          res.SrcEscrowTx,
		"deployed_at": srcDeployedAt,
	}).Info("source escrow deployed")

	// phase 3: mirror the escrow on the destination chain
	dstIm, err := d.deployDst(ctx, dstClient, dstChain, srcIm, complement, res)
	if err != nil {
		return res, err
	}
	log.WithField("tx", res.DstEscrowTx).Info("destination escrow deployed")

	// phase 4: wait out finality, then withdraw destination first so the
	// revealed secret can unlock the source side
	if err := d.sleep(ctx, d.finalityDelay); err != nil {
		return res, swaperr.Wrap(swaperr.KindChain, "swap.finalityWait", err)
	}

	srcEscrowAddr, err := srcIm.Address(
		common.HexToAddress(srcChain.Factory),
		common.HexToAddress(srcChain.EscrowImpl),
	)
	if err != nil {
		return res, err
	}
	dstEscrowAddr, err := dstIm.Address(
		common.HexToAddress(dstChain.Factory),
		common.HexToAddress(dstChain.EscrowImpl),
	)
	if err != nil {
		return res, err
	}
	res.SrcEscrow = srcEscrowAddr.Hex()
	res.DstEscrow = dstEscrowAddr.Hex()

	secret, err := order.SecretBytes(o)
	if err != nil {
		return res, err
	}

	if err := d.withdraw(ctx, dstClient, dstChain, dstEscrowAddr, secret, dstIm, &res.DstWithdrawTx); err != nil {
		return res, err
	}
	res.WithdrawnSides = append(res.WithdrawnSides, types.WithdrawSideDst)
	log.WithField("tx", res.DstWithdrawTx).Info("destination withdrawal complete, secret revealed")

	if err := d.withdraw(ctx, srcClient, srcChain, srcEscrowAddr, secret, srcIm, &res.SrcWithdrawTx); err != nil {
		return res, err
	}
	res.WithdrawnSides = append(res.WithdrawnSides, types.WithdrawSideSrc)
	log.WithField("tx", res.SrcWithdrawTx).Info("source withdrawal complete")

	return res, nil
}

func (d *Driver) chainFor(chainID int64) (chain.Client, config.ChainConfig, error) {
	client, ok := d.clients[chainID]
	if !ok {
		return nil, config.ChainConfig{}, swaperr.New(swaperr.KindConfig, "no client configured for chain %d", chainID)
	}
	return client, d.chains[chainID], nil
}

func (d *Driver) deploySrc(
	ctx context.Context,
	client chain.Client,
	chainCfg config.ChainConfig,
	o *types.SignedOrder,
	res *Result,
) (escrow.Immutables, escrow.Complement, uint32, error) {
	im, err := localImmutables(o, common.HexToAddress(chainCfg.Resolver))
	if err != nil {
		return escrow.Immutables{}, escrow.Complement{}, 0, err
	}

	ot, err := orderTupleFrom(o)
	if err != nil {
		return escrow.Immutables{}, escrow.Complement{}, 0, err
	}

	r, vs, err := splitSignature(o.Signature)
	if err != nil {
		return escrow.Immutables{}, escrow.Complement{}, 0, err
	}

	args, err := hexutil.Decode(o.ExtensionData)
	if err != nil {
		return escrow.Immutables{}, escrow.Complement{}, 0, swaperr.New(swaperr.KindConfig, "invalid extension data: %v", err)
	}
	// taker traits carry the extension length in the top lane so the
	// protocol can split args back out
	takerTraits := new(big.Int).Lsh(big.NewInt(int64(len(args))), 224)

	data, err := resolverABI.Pack("deploySrc", tupleFrom(im), ot, r, vs, im.Amount, takerTraits, args)
	if err != nil {
		return escrow.Immutables{}, escrow.Complement{}, 0, swaperr.Wrap(swaperr.KindChain, "swap.deploySrc", err)
	}

	receipt, err := client.SendAndWait(ctx, chain.TxRequest{
		To:       common.HexToAddress(chainCfg.Resolver),
		Data:     data,
		Value:    im.SafetyDeposit,
		GasLimit: d.gasLimit,
	})
	if err != nil {
		return escrow.Immutables{}, escrow.Complement{}, 0, err
	}
	res.SrcEscrowTx = receipt.TxHash.Hex()

	factory := common.HexToAddress(chainCfg.Factory)
	srcIm, complement, err := escrow.FindSrcEscrowCreated(receipt.Logs, factory)
	if err != nil {
		// some providers prune logs from receipts; the event is the only
		// source of the escrow identity, so re-query the mined block
		srcIm, complement, err = d.findEventInBlock(ctx, client, factory, receipt.BlockNumber)
		if err != nil {
			return escrow.Immutables{}, escrow.Complement{}, 0, err
		}
	}

	deployedAt, err := client.BlockTimestamp(ctx, receipt.BlockNumber)
	if err != nil {
		return escrow.Immutables{}, escrow.Complement{}, 0, err
	}
	return srcIm, complement, uint32(deployedAt), nil
}

func (d *Driver) findEventInBlock(
	ctx context.Context,
	client chain.Client,
	factory common.Address,
	blockNumber *big.Int,
) (escrow.Immutables, escrow.Complement, error) {
	logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: blockNumber,
		ToBlock:   blockNumber,
		Addresses: []common.Address{factory},
		Topics:    [][]common.Hash{{escrow.EventTopic()}},
	})
	if err != nil {
		return escrow.Immutables{}, escrow.Complement{}, err
	}
	ptrs := make([]*gtypes.Log, len(logs))
	for i := range logs {
		ptrs[i] = &logs[i]
	}
	return escrow.FindSrcEscrowCreated(ptrs, factory)
}

func (d *Driver) deployDst(
	ctx context.Context,
	client chain.Client,
	chainCfg config.ChainConfig,
	srcIm escrow.Immutables,
	complement escrow.Complement,
	res *Result,
) (escrow.Immutables, error) {
	dstIm := srcIm.
		WithComplement(complement).
		WithTaker(common.HexToAddress(chainCfg.Resolver))

	data, err := resolverABI.Pack("deployDst", tupleFrom(dstIm), srcIm.SrcCancellationTimestamp())
	if err != nil {
		return escrow.Immutables{}, swaperr.Wrap(swaperr.KindChain, "swap.deployDst", err)
	}

	receipt, err := client.SendAndWait(ctx, chain.TxRequest{
		To:       common.HexToAddress(chainCfg.Resolver),
		Data:     data,
		Value:    dstIm.SafetyDeposit,
		GasLimit: d.gasLimit,
	})
	if err != nil {
		return escrow.Immutables{}, err
	}
	res.DstEscrowTx = receipt.TxHash.Hex()

	// the destination deployment timestamp seeds the CREATE2 address, so
	// it must come from the mined block, never from local clocks
	deployedAt, err := client.BlockTimestamp(ctx, receipt.BlockNumber)
	if err != nil {
		return escrow.Immutables{}, err
	}
	return dstIm.WithDeployedAt(uint32(deployedAt)), nil
}

func (d *Driver) withdraw(
	ctx context.Context,
	client chain.Client,
	chainCfg config.ChainConfig,
	escrowAddr common.Address,
	secret []byte,
	im escrow.Immutables,
	txOut *string,
) error {
	var secret32 [32]byte
	copy(secret32[:], secret)

	data, err := resolverABI.Pack("withdraw", escrowAddr, secret32, tupleFrom(im))
	if err != nil {
		return swaperr.Wrap(swaperr.KindChain, "swap.withdraw", err)
	}

	receipt, err := client.SendAndWait(ctx, chain.TxRequest{
		To:       common.HexToAddress(chainCfg.Resolver),
		Data:     data,
		GasLimit: d.gasLimit,
	})
	if err != nil {
		return err
	}
	*txOut = receipt.TxHash.Hex()
	return nil
}

// localImmutables assembles the phase-2 call parameters from the signed
// bundle. The factory event later replaces them as the canonical identity.
func localImmutables(o *types.SignedOrder, taker common.Address) (escrow.Immutables, error) {
	amount, ok := new(big.Int).SetString(o.MakingAmount, 10)
	if !ok {
		return escrow.Immutables{}, swaperr.New(swaperr.KindConfig, "invalid making amount: %q", o.MakingAmount)
	}
	deposit, ok := new(big.Int).SetString(o.SrcSafetyDeposit, 10)
	if !ok {
		return escrow.Immutables{}, swaperr.New(swaperr.KindConfig, "invalid src safety deposit: %q", o.SrcSafetyDeposit)
	}
	return escrow.Immutables{
		OrderHash:     common.HexToHash(o.OrderHash),
		HashLock:      common.HexToHash(o.HashLock),
		Maker:         common.HexToAddress(o.Maker),
		Taker:         taker,
		Token:         common.HexToAddress(o.MakerAsset),
		Amount:        amount,
		SafetyDeposit: deposit,
		TimeLocks:     order.PackTimeLocks(o.TimeLocks, 0),
	}, nil
}

func tupleFrom(im escrow.Immutables) immutablesTuple {
	return immutablesTuple{
		OrderHash:     im.OrderHash,
		Hashlock:      im.HashLock,
		Maker:         new(big.Int).SetBytes(im.Maker.Bytes()),
		Taker:         new(big.Int).SetBytes(im.Taker.Bytes()),
		Token:         new(big.Int).SetBytes(im.Token.Bytes()),
		Amount:        im.Amount,
		SafetyDeposit: im.SafetyDeposit,
		Timelocks:     im.TimeLocks,
	}
}

func orderTupleFrom(o *types.SignedOrder) (orderTuple, error) {
	salt, ok := new(big.Int).SetString(o.Salt, 10)
	if !ok {
		return orderTuple{}, swaperr.New(swaperr.KindConfig, "invalid order salt: %q", o.Salt)
	}
	nonce, ok := new(big.Int).SetString(o.Nonce, 10)
	if !ok {
		return orderTuple{}, swaperr.New(swaperr.KindConfig, "invalid order nonce: %q", o.Nonce)
	}
	making, ok := new(big.Int).SetString(o.MakingAmount, 10)
	if !ok {
		return orderTuple{}, swaperr.New(swaperr.KindConfig, "invalid making amount: %q", o.MakingAmount)
	}
	taking, ok := new(big.Int).SetString(o.TakingAmount, 10)
	if !ok {
		return orderTuple{}, swaperr.New(swaperr.KindConfig, "invalid taking amount: %q", o.TakingAmount)
	}
	return orderTuple{
		Salt:         salt,
		Maker:        new(big.Int).SetBytes(common.HexToAddress(o.Maker).Bytes()),
		Receiver:     big.NewInt(0),
		MakerAsset:   new(big.Int).SetBytes(common.HexToAddress(o.MakerAsset).Bytes()),
		TakerAsset:   new(big.Int).SetBytes(common.HexToAddress(o.TakerAsset).Bytes()),
		MakingAmount: making,
		TakingAmount: taking,
		MakerTraits:  nonce,
	}, nil
}

// splitSignature converts a 65-byte signature into the compact r, vs form
// the protocol expects (EIP-2098).
func splitSignature(sigHex string) ([32]byte, [32]byte, error) {
	var r, vs [32]byte
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return r, vs, swaperr.New(swaperr.KindConfig, "invalid signature hex: %v", err)
	}
	if len(sig) != 65 {
		return r, vs, swaperr.New(swaperr.KindConfig, "signature must be 65 bytes, got %d", len(sig))
	}
	copy(r[:], sig[:32])
	copy(vs[:], sig[32:64])
	if sig[64] == 28 || sig[64] == 1 {
		vs[0] |= 0x80
	}
	return r, vs, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
