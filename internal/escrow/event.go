package escrow

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ArbMon-Fusion/dca-engine/internal/swaperr"
)

// Factory event carrying the canonical escrow identity. The receipt's copy
// of this event, not locally computed parameters, is the source of truth
// for everything downstream.
const factoryEventABI = `[{
	"anonymous": false,
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
		], "name": "srcImmutables", "type": "tuple"},
		{"components": [
			{"name": "maker", "type": "uint256"},
			{"name": "amount", "type": "uint256"},
			{"name": "token", "type": "uint256"},
			{"name": "safetyDeposit", "type": "uint256"},
			{"name": "chainId", "type": "uint256"}
		], "name": "dstImmutablesComplement", "type": "tuple"}
	],
	"name": "SrcEscrowCreated",
	"type": "event"
}]`

type srcEscrowCreated struct {
	SrcImmutables struct {
		OrderHash     [32]byte
		Hashlock      [32]byte
		Maker         *big.Int
		Taker         *big.Int
		Token         *big.Int
		Amount        *big.Int
		SafetyDeposit *big.Int
		Timelocks     *big.Int
	}
	DstImmutablesComplement struct {
		Maker         *big.Int
		Amount        *big.Int
		Token         *big.Int
		SafetyDeposit *big.Int
		ChainId       *big.Int
	}
}

var factoryABI = mustABI(factoryEventABI)

// EventTopic is the SrcEscrowCreated topic hash used to match receipt logs.
func EventTopic() common.Hash {
	return factoryABI.Events["SrcEscrowCreated"].ID
}

// DecodeSrcEscrowCreated parses the factory event from a receipt log into
// the source immutables and the destination complement.
func DecodeSrcEscrowCreated(log gtypes.Log) (Immutables, Complement, error) {
	var ev srcEscrowCreated
	if err := factoryABI.UnpackIntoInterface(&ev, "SrcEscrowCreated", log.Data); err != nil {
		return Immutables{}, Complement{}, swaperr.Wrap(swaperr.KindChain, "escrow.DecodeSrcEscrowCreated", err)
	}

	im := Immutables{
		OrderHash:     ev.SrcImmutables.OrderHash,
		HashLock:      ev.SrcImmutables.Hashlock,
		Maker:         common.BigToAddress(ev.SrcImmutables.Maker),
		Taker:         common.BigToAddress(ev.SrcImmutables.Taker),
		Token:         common.BigToAddress(ev.SrcImmutables.Token),
		Amount:        ev.SrcImmutables.Amount,
		SafetyDeposit: ev.SrcImmutables.SafetyDeposit,
		TimeLocks:     ev.SrcImmutables.Timelocks,
	}
	c := Complement{
		Maker:         common.BigToAddress(ev.DstImmutablesComplement.Maker),
		Amount:        ev.DstImmutablesComplement.Amount,
		Token:         common.BigToAddress(ev.DstImmutablesComplement.Token),
		SafetyDeposit: ev.DstImmutablesComplement.SafetyDeposit,
		ChainID:       ev.DstImmutablesComplement.ChainId,
	}
	return im, c, nil
}

// FindSrcEscrowCreated scans receipt logs for the factory event emitted by
// the expected factory address.
func FindSrcEscrowCreated(logs []*gtypes.Log, factory common.Address) (Immutables, Complement, error) {
	topic := EventTopic()
	for _, l := range logs {
		if l == nil || len(l.Topics) == 0 {
			continue
		}
		if l.Topics[0] != topic {
			continue
		}
		if factory != (common.Address{}) && l.Address != factory {
			continue
		}
		return DecodeSrcEscrowCreated(*l)
	}
	return Immutables{}, Complement{}, swaperr.New(swaperr.KindChain,
		"SrcEscrowCreated event not found in receipt logs for factory %s", factory.Hex())
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
