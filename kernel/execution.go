package kernel

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// CallType is the first byte of an ERC-7579 execution mode.
type CallType byte

const (
	CallTypeCall         CallType = 0x00
	CallTypeBatch        CallType = 0x01
	CallTypeDelegateCall CallType = 0xff
)

func (c CallType) String() string {
	switch c {
	case CallTypeCall:
		return "call"
	case CallTypeBatch:
		return "batch"
	case CallTypeDelegateCall:
		return "delegatecall"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(c))
	}
}

var (
	ErrNoCalls             = errors.New("no calls to encode")
	ErrUnsupportedCallType = errors.New("unsupported call type")
	ErrNotExecute          = errors.New("call data is not a kernel execute call")
)

// Call is a single action performed by the account.
type Call struct {
	To       common.Address
	Value    *big.Int
	Data     []byte
	CallType CallType
}

// Selector returns the first four bytes of the call data, or zero for plain transfers.
func (c Call) Selector() [4]byte {
	var sel [4]byte
	if len(c.Data) >= 4 {
		copy(sel[:], c.Data[:4])
	}
	return sel
}

// ValueOrZero never returns nil.
func (c Call) ValueOrZero() *big.Int {
	if c.Value == nil {
		return new(big.Int)
	}
	return c.Value
}

// execution matches the Execution struct of ERC-7579 batch calldata.
type execution struct {
	Target   common.Address
	Value    *big.Int
	CallData []byte
}

var executionsArgs = func() abi.Arguments {
	t, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "callData", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}()

// ExecMode builds the bytes32 execution mode for the default exec type.
func ExecMode(callType CallType) [32]byte {
	var mode [32]byte
	mode[0] = byte(callType)
	return mode
}

// EncodeExecute encodes calls into Kernel execute(bytes32,bytes) call data.
// A single call keeps its own call type, several calls become a batch.
func EncodeExecute(calls ...Call) ([]byte, error) {
	var (
		callType CallType
		payload  []byte
	)
	switch len(calls) {
	case 0:
		return nil, ErrNoCalls
	case 1:
		c := calls[0]
		callType = c.CallType
		switch c.CallType {
		case CallTypeCall:
			payload = append(payload, c.To.Bytes()...)
			payload = append(payload, common.LeftPadBytes(c.ValueOrZero().Bytes(), 32)...)
			payload = append(payload, c.Data...)
		case CallTypeDelegateCall:
			payload = append(payload, c.To.Bytes()...)
			payload = append(payload, c.Data...)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedCallType, c.CallType)
		}
	default:
		callType = CallTypeBatch
		executions := make([]execution, len(calls))
		for i, c := range calls {
			if c.CallType != CallTypeCall {
				return nil, fmt.Errorf("%w: %s inside batch", ErrUnsupportedCallType, c.CallType)
			}
			executions[i] = execution{Target: c.To, Value: c.ValueOrZero(), CallData: c.Data}
		}
		packed, err := executionsArgs.Pack(executions)
		if err != nil {
			return nil, fmt.Errorf("error packing batch executions: %w", err)
		}
		payload = packed
	}
	return kernelABI.Pack("execute", ExecMode(callType), payload)
}

// DecodeExecute reverses EncodeExecute. Batches are flattened into plain calls.
func DecodeExecute(callData []byte) ([]Call, error) {
	method := kernelABI.Methods["execute"]
	if len(callData) < 4 || !bytes.Equal(callData[:4], method.ID) {
		return nil, ErrNotExecute
	}
	args, err := method.Inputs.Unpack(callData[4:])
	if err != nil {
		return nil, fmt.Errorf("error unpacking execute: %w", err)
	}
	mode := args[0].([32]byte)
	payload := args[1].([]byte)

	switch CallType(mode[0]) {
	case CallTypeCall:
		if len(payload) < 52 {
			return nil, fmt.Errorf("single execution too short: %d bytes", len(payload))
		}
		return []Call{{
			To:       common.BytesToAddress(payload[:20]),
			Value:    new(big.Int).SetBytes(payload[20:52]),
			Data:     common.CopyBytes(payload[52:]),
			CallType: CallTypeCall,
		}}, nil
	case CallTypeDelegateCall:
		if len(payload) < 20 {
			return nil, fmt.Errorf("delegate execution too short: %d bytes", len(payload))
		}
		return []Call{{
			To:       common.BytesToAddress(payload[:20]),
			Value:    new(big.Int),
			Data:     common.CopyBytes(payload[20:]),
			CallType: CallTypeDelegateCall,
		}}, nil
	case CallTypeBatch:
		out, err := executionsArgs.Unpack(payload)
		if err != nil {
			return nil, fmt.Errorf("error unpacking batch executions: %w", err)
		}
		executions := *abi.ConvertType(out[0], new([]execution)).(*[]execution)
		calls := make([]Call, len(executions))
		for i, e := range executions {
			calls[i] = Call{To: e.Target, Value: e.Value, Data: e.CallData, CallType: CallTypeCall}
		}
		return calls, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCallType, CallType(mode[0]))
	}
}
