package permission

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/kernel"
)

var ErrPolicyViolation = errors.New("call violates session key policy")

// PolicyFlagAll applies a policy to both user operations and signatures.
var PolicyFlagAll = [2]byte{0x00, 0x00}

// Policy is a module attached to a permission that restricts what the
// session signer may do.
type Policy interface {
	// Address of the policy contract.
	Address() common.Address
	Flag() [2]byte
	// Data is the install data passed to the policy contract.
	Data() []byte
	// Check mirrors the on-chain check for a single call.
	Check(call kernel.Call) error
}

// SudoPolicy allows any call. A session key holding it has the same power
// as the owner until revoked.
type SudoPolicy struct {
	address common.Address
}

var _ Policy = (*SudoPolicy)(nil)

func NewSudoPolicy(address common.Address) *SudoPolicy {
	return &SudoPolicy{address: address}
}

func (p *SudoPolicy) Address() common.Address { return p.address }
func (p *SudoPolicy) Flag() [2]byte           { return PolicyFlagAll }
func (p *SudoPolicy) Data() []byte            { return []byte{} }
func (p *SudoPolicy) Check(kernel.Call) error { return nil }

// CallPolicy allows only calls covered by one of its permissions.
type CallPolicy struct {
	address     common.Address
	permissions []CallPermission
	data        []byte
}

var _ Policy = (*CallPolicy)(nil)

type wireRule struct {
	Condition uint8
	Offset    uint64
	Params    [][32]byte
}

type wirePermission struct {
	CallType   [1]byte
	Target     common.Address
	Selector   [4]byte
	ValueLimit *big.Int
	Rules      []wireRule
}

var callPolicyArgs = func() abi.Arguments {
	t, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "callType", Type: "bytes1"},
		{Name: "target", Type: "address"},
		{Name: "selector", Type: "bytes4"},
		{Name: "valueLimit", Type: "uint256"},
		{Name: "rules", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "condition", Type: "uint8"},
			{Name: "offset", Type: "uint64"},
			{Name: "params", Type: "bytes32[]"},
		}},
	})
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}()

// NewCallPolicy encodes the permissions into the policy install data.
func NewCallPolicy(address common.Address, permissions ...CallPermission) (*CallPolicy, error) {
	if len(permissions) == 0 {
		return nil, errors.New("call policy needs at least one permission")
	}
	wire := make([]wirePermission, len(permissions))
	for i, p := range permissions {
		limit := p.ValueLimit
		if limit == nil {
			limit = new(big.Int)
		}
		rules := make([]wireRule, len(p.Rules))
		for j, r := range p.Rules {
			rules[j] = wireRule{Condition: uint8(r.Condition), Offset: r.Offset, Params: r.Params}
			if rules[j].Params == nil {
				rules[j].Params = [][32]byte{}
			}
		}
		wire[i] = wirePermission{
			CallType:   [1]byte{byte(p.CallType)},
			Target:     p.Target,
			Selector:   p.Selector,
			ValueLimit: limit,
			Rules:      rules,
		}
	}
	data, err := callPolicyArgs.Pack(wire)
	if err != nil {
		return nil, errors.Wrap(err, "packing call policy permissions")
	}
	return &CallPolicy{address: address, permissions: permissions, data: data}, nil
}

// DecodeCallPolicy parses call policy install data.
func DecodeCallPolicy(address common.Address, data []byte) (*CallPolicy, error) {
	out, err := callPolicyArgs.Unpack(data)
	if err != nil {
		return nil, errors.Wrap(err, "unpacking call policy permissions")
	}
	wire := *abi.ConvertType(out[0], new([]wirePermission)).(*[]wirePermission)
	permissions := make([]CallPermission, len(wire))
	for i, w := range wire {
		rules := make([]ParamRule, len(w.Rules))
		for j, r := range w.Rules {
			rules[j] = ParamRule{Condition: ParamOperator(r.Condition), Offset: r.Offset, Params: r.Params}
		}
		permissions[i] = CallPermission{
			CallType:   kernel.CallType(w.CallType[0]),
			Target:     w.Target,
			Selector:   w.Selector,
			ValueLimit: w.ValueLimit,
			Rules:      rules,
		}
	}
	return &CallPolicy{address: address, permissions: permissions, data: common.CopyBytes(data)}, nil
}

func (p *CallPolicy) Address() common.Address { return p.address }
func (p *CallPolicy) Flag() [2]byte           { return PolicyFlagAll }
func (p *CallPolicy) Data() []byte            { return p.data }

// Permissions returns the decoded permissions.
func (p *CallPolicy) Permissions() []CallPermission {
	return p.permissions
}

// Check passes when a permission matching the call's type, target and
// selector accepts it. Exact targets are preferred over the zero wildcard.
func (p *CallPolicy) Check(call kernel.Call) error {
	var wildcard *CallPermission
	for i := range p.permissions {
		perm := p.permissions[i]
		if !perm.Matches(call) {
			continue
		}
		if perm.Target == call.To {
			return perm.Check(call)
		}
		if wildcard == nil {
			wildcard = &p.permissions[i]
		}
	}
	if wildcard != nil {
		return wildcard.Check(call)
	}
	return errors.Wrapf(ErrPolicyViolation, "no permission for %s to %s selector %x", call.CallType, call.To.Hex(), call.Selector())
}
