package permission

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/kernel"
)

// ParamOperator compares a 32 byte call argument against the rule params.
type ParamOperator uint8

const (
	Equal ParamOperator = iota
	GreaterThan
	LessThan
	GreaterThanOrEqual
	LessThanOrEqual
	NotEqual
	OneOf
)

func (o ParamOperator) String() string {
	switch o {
	case Equal:
		return "EQUAL"
	case GreaterThan:
		return "GREATER_THAN"
	case LessThan:
		return "LESS_THAN"
	case GreaterThanOrEqual:
		return "GREATER_THAN_OR_EQUAL"
	case LessThanOrEqual:
		return "LESS_THAN_OR_EQUAL"
	case NotEqual:
		return "NOT_EQUAL"
	case OneOf:
		return "ONE_OF"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(o))
	}
}

// ParamRule constrains the 32 byte word found Offset bytes after the selector.
type ParamRule struct {
	Condition ParamOperator
	Offset    uint64
	Params    [][32]byte
}

// Check evaluates the rule against call data that includes the selector.
func (r ParamRule) Check(callData []byte) error {
	if size := uint64(len(callData)); r.Offset > size || size-r.Offset < 4+32 {
		return errors.Wrapf(ErrPolicyViolation, "argument at offset %d missing", r.Offset)
	}
	start := 4 + r.Offset
	if len(r.Params) == 0 {
		return errors.Wrapf(ErrPolicyViolation, "rule at offset %d has no params", r.Offset)
	}
	word := callData[start : start+32]
	param := new(big.Int).SetBytes(word)
	ref := new(big.Int).SetBytes(r.Params[0][:])

	var ok bool
	switch r.Condition {
	case Equal:
		ok = param.Cmp(ref) == 0
	case GreaterThan:
		ok = param.Cmp(ref) > 0
	case LessThan:
		ok = param.Cmp(ref) < 0
	case GreaterThanOrEqual:
		ok = param.Cmp(ref) >= 0
	case LessThanOrEqual:
		ok = param.Cmp(ref) <= 0
	case NotEqual:
		ok = param.Cmp(ref) != 0
	case OneOf:
		for _, p := range r.Params {
			if bytes.Equal(word, p[:]) {
				ok = true
				break
			}
		}
	default:
		return errors.Wrapf(ErrPolicyViolation, "unknown condition %d", r.Condition)
	}
	if !ok {
		return errors.Wrapf(ErrPolicyViolation, "argument at offset %d fails %s", r.Offset, r.Condition)
	}
	return nil
}

// CallPermission allows calls of one type to one target and selector.
// A zero Target matches any target.
type CallPermission struct {
	CallType   kernel.CallType
	Target     common.Address
	Selector   [4]byte
	ValueLimit *big.Int
	Rules      []ParamRule
}

// Matches reports whether the permission covers the call type, target and selector.
func (p CallPermission) Matches(call kernel.Call) bool {
	if p.CallType != call.CallType {
		return false
	}
	if p.Target != (common.Address{}) && p.Target != call.To {
		return false
	}
	return p.Selector == call.Selector()
}

// Check applies the value limit and every argument rule.
func (p CallPermission) Check(call kernel.Call) error {
	limit := p.ValueLimit
	if limit == nil {
		limit = new(big.Int)
	}
	if call.ValueOrZero().Cmp(limit) > 0 {
		return errors.Wrapf(ErrPolicyViolation, "value %s exceeds limit %s", call.ValueOrZero(), limit)
	}
	for _, rule := range p.Rules {
		if err := rule.Check(call.Data); err != nil {
			return err
		}
	}
	return nil
}

// ArgCondition constrains one positional argument of a method.
type ArgCondition struct {
	Operator ParamOperator
	Values   []any
}

// Arg builds an ArgCondition. Values are Go values matching the ABI argument type.
func Arg(op ParamOperator, values ...any) *ArgCondition {
	return &ArgCondition{Operator: op, Values: values}
}

// NewCallPermission builds a CALL permission for method on target. Conditions
// are matched positionally to the method inputs; a nil entry leaves the
// argument unconstrained. Only static argument types can be constrained.
func NewCallPermission(target common.Address, contractABI *abi.ABI, method string, valueLimit *big.Int, args ...*ArgCondition) (CallPermission, error) {
	m, ok := contractABI.Methods[method]
	if !ok {
		return CallPermission{}, errors.Errorf("method %q not found in abi", method)
	}
	if len(args) > len(m.Inputs) {
		return CallPermission{}, errors.Errorf("%d conditions for %d arguments of %s", len(args), len(m.Inputs), method)
	}
	if valueLimit == nil {
		valueLimit = new(big.Int)
	}

	perm := CallPermission{
		CallType:   kernel.CallTypeCall,
		Target:     target,
		ValueLimit: valueLimit,
	}
	copy(perm.Selector[:], m.ID)

	for i, cond := range args {
		if cond == nil {
			continue
		}
		input := m.Inputs[i]
		switch input.Type.T {
		case abi.StringTy, abi.BytesTy, abi.SliceTy, abi.ArrayTy, abi.TupleTy:
			return CallPermission{}, errors.Errorf("argument %q of %s has dynamic type %s", input.Name, method, input.Type)
		}
		if len(cond.Values) == 0 {
			return CallPermission{}, errors.Errorf("argument %q of %s has no values", input.Name, method)
		}
		if cond.Operator != OneOf && len(cond.Values) != 1 {
			return CallPermission{}, errors.Errorf("operator %s takes one value, got %d", cond.Operator, len(cond.Values))
		}
		rule := ParamRule{Condition: cond.Operator, Offset: uint64(i) * 32}
		for _, v := range cond.Values {
			word, err := abi.Arguments{{Type: input.Type}}.Pack(v)
			if err != nil {
				return CallPermission{}, errors.Wrapf(err, "packing value for argument %q", input.Name)
			}
			var param [32]byte
			copy(param[:], word)
			rule.Params = append(rule.Params, param)
		}
		perm.Rules = append(perm.Rules, rule)
	}
	return perm, nil
}

// WithCallType returns a copy of the permission for another call type.
func (p CallPermission) WithCallType(callType kernel.CallType) CallPermission {
	p.CallType = callType
	return p
}
