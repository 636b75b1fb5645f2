package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/ArbMon-Fusion/dca-engine/internal/swaperr"
)

// TxRequest is the narrow submit-and-confirm surface the swap driver needs.
type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

// Client is the chain transaction capability. Every call carries an explicit
// timeout so a hung provider cannot stall the scheduler indefinitely.
type Client interface {
	// SendAndWait submits the transaction, waits for one confirmation and
	// returns the receipt. A reverted transaction is an error.
	SendAndWait(ctx context.Context, req TxRequest) (*gtypes.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gtypes.Log, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	BlockTimestamp(ctx context.Context, blockNumber *big.Int) (uint64, error)
	Close()
}

type EthClient struct {
	rpc         *ethclient.Client
	chainID     *big.Int
	key         *ecdsa.PrivateKey
	from        common.Address
	callTimeout time.Duration
	logger      *logrus.Logger
}

func NewEthClient(rpcURL string, chainID int64, privateKeyHex string, callTimeout time.Duration, logger *logrus.Logger) (*EthClient, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("fail to connect to RPC client: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &EthClient{
		rpc:         rpc,
		chainID:     big.NewInt(chainID),
		key:         key,
		from:        crypto.PubkeyToAddress(key.PublicKey),
		callTimeout: callTimeout,
		logger:      logger,
	}, nil
}

func (c *EthClient) From() common.Address {
	return c.from
}

func (c *EthClient) SendAndWait(ctx context.Context, req TxRequest) (*gtypes.Receipt, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	nonce, err := c.rpc.PendingNonceAt(callCtx, c.from)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindChain, "chain.PendingNonceAt", err)
	}
	gasPrice, err := c.rpc.SuggestGasPrice(callCtx)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindChain, "chain.SuggestGasPrice", err)
	}

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}
	tx := gtypes.NewTx(&gtypes.LegacyTx{
		Nonce:    nonce,
		To:       &req.To,
		Value:    value,
		Gas:      req.GasLimit,
		GasPrice: gasPrice,
		Data:     req.Data,
	})

	signedTx, err := gtypes.SignTx(tx, gtypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindChain, "chain.SignTx", err)
	}

	if err := c.rpc.SendTransaction(callCtx, signedTx); err != nil {
		return nil, swaperr.Wrap(swaperr.KindChain, "chain.SendTransaction", err)
	}

	c.logger.WithFields(logrus.Fields{
		"chain_id": c.chainID.String(),
		"tx_hash":  signedTx.Hash().Hex(),
		"to":       req.To.Hex(),
	}).Info("transaction submitted, waiting for confirmation")

	// Confirmation can take longer than a single RPC round trip.
	waitCtx, cancelWait := context.WithTimeout(ctx, 5*c.callTimeout)
	defer cancelWait()

	receipt, err := bind.WaitMined(waitCtx, c.rpc, signedTx)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindChain, "chain.WaitMined", err)
	}
	if receipt.Status != gtypes.ReceiptStatusSuccessful {
		return nil, swaperr.New(swaperr.KindChain, "transaction %s reverted", signedTx.Hash().Hex())
	}
	return receipt, nil
}

func (c *EthClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gtypes.Log, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	logs, err := c.rpc.FilterLogs(callCtx, q)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindChain, "chain.FilterLogs", err)
	}
	return logs, nil
}

func (c *EthClient) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	out, err := c.rpc.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindChain, "chain.CallContract", err)
	}
	return out, nil
}

func (c *EthClient) BlockTimestamp(ctx context.Context, blockNumber *big.Int) (uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	header, err := c.rpc.HeaderByNumber(callCtx, blockNumber)
	if err != nil {
		return 0, swaperr.Wrap(swaperr.KindChain, "chain.HeaderByNumber", err)
	}
	return header.Time, nil
}

func (c *EthClient) Close() {
	c.rpc.Close()
}

var _ Client = (*EthClient)(nil)
