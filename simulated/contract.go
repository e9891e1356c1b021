package simulated

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/bindings/nft"
)

var (
	ErrReverted    = errors.New("execution reverted")
	errStaticWrite = errors.New("state change in static call")
)

// Contract is a Go stand-in for contract code deployed on the simulated chain.
type Contract interface {
	Call(env *CallEnv, input []byte) ([]byte, error)
}

// CallEnv is the context of a single contract call.
type CallEnv struct {
	From     common.Address
	Value    *big.Int
	ReadOnly bool

	address common.Address
	logs    *[]*types.Log
	undo    *[]func()
}

// Emit appends a log to the operation receipt.
func (e *CallEnv) Emit(topics []common.Hash, data []byte) {
	if e.logs == nil {
		return
	}
	*e.logs = append(*e.logs, &types.Log{
		Address: e.address,
		Topics:  topics,
		Data:    data,
	})
}

// OnRevert registers fn to roll back a state change when the enclosing
// execution fails.
func (e *CallEnv) OnRevert(fn func()) {
	if e.undo == nil {
		return
	}
	*e.undo = append(*e.undo, fn)
}

// NFT mimics the demo ERC-721: anyone can mint to any address.
type NFT struct {
	abi     *abi.ABI
	owners  map[uint64]common.Address
	balance map[common.Address]uint64
	next    uint64
}

var _ Contract = (*NFT)(nil)

func NewNFT() *NFT {
	parsed, err := nft.NFTMetaData.GetAbi()
	if err != nil {
		panic(err)
	}
	return &NFT{
		abi:     parsed,
		owners:  make(map[uint64]common.Address),
		balance: make(map[common.Address]uint64),
	}
}

func (n *NFT) Call(env *CallEnv, input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, fmt.Errorf("%w: no selector", ErrReverted)
	}
	method, err := n.abi.MethodById(input[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: unknown selector %x", ErrReverted, input[:4])
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReverted, err)
	}

	switch method.Name {
	case "mint":
		if env.ReadOnly {
			return nil, errStaticWrite
		}
		to := args[0].(common.Address)
		if to == (common.Address{}) {
			return nil, fmt.Errorf("%w: mint to the zero address", ErrReverted)
		}
		id := n.next
		n.next++
		n.owners[id] = to
		n.balance[to]++
		env.OnRevert(func() {
			n.next--
			delete(n.owners, id)
			n.balance[to]--
		})
		env.Emit([]common.Hash{
			n.abi.Events["Transfer"].ID,
			{},
			common.BytesToHash(to.Bytes()),
			common.BigToHash(new(big.Int).SetUint64(id)),
		}, nil)
		return nil, nil
	case "balanceOf":
		owner := args[0].(common.Address)
		return method.Outputs.Pack(new(big.Int).SetUint64(n.balance[owner]))
	case "ownerOf":
		id := args[0].(*big.Int)
		owner, ok := n.owners[id.Uint64()]
		if !id.IsUint64() || !ok {
			return nil, fmt.Errorf("%w: nonexistent token", ErrReverted)
		}
		return method.Outputs.Pack(owner)
	}
	return nil, fmt.Errorf("%w: %s not implemented", ErrReverted, method.Name)
}

// BalanceOf returns the number of tokens owned by owner.
func (n *NFT) BalanceOf(owner common.Address) uint64 {
	return n.balance[owner]
}
