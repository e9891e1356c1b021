// Package permission models Kernel v3 permissions: a session signer plus the
// policies limiting what it can execute through the account.
package permission

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/kernel"
)

var ErrInvalidPermission = errors.New("invalid permission data")

var validatorDataArgs = func() abi.Arguments {
	t, err := abi.NewType("bytes[]", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}()

// Permission binds a session signer to its policies.
type Permission struct {
	// SignerModule is the signer contract validating the session signature.
	SignerModule common.Address
	// Signer is the session key address.
	Signer   common.Address
	Policies []Policy
}

// New builds a permission for signer using the default ECDSA signer module.
func New(signer common.Address, policies ...Policy) *Permission {
	return &Permission{
		SignerModule: kernel.DefaultAddresses().ECDSASigner,
		Signer:       signer,
		Policies:     policies,
	}
}

// ValidatorData encodes the permission as installed on the account: one
// element per policy followed by the signer element.
func (p *Permission) ValidatorData() ([]byte, error) {
	if len(p.Policies) == 0 {
		return nil, errors.New("permission needs at least one policy")
	}
	elements := make([][]byte, 0, len(p.Policies)+1)
	for _, policy := range p.Policies {
		elements = append(elements, element(policy.Flag(), policy.Address(), policy.Data()))
	}
	elements = append(elements, element(PolicyFlagAll, p.SignerModule, p.Signer.Bytes()))
	data, err := validatorDataArgs.Pack(elements)
	if err != nil {
		return nil, errors.Wrap(err, "packing permission validator data")
	}
	return data, nil
}

// ID is the first four bytes of the validator data hash.
func (p *Permission) ID() ([4]byte, error) {
	var id [4]byte
	data, err := p.ValidatorData()
	if err != nil {
		return id, err
	}
	copy(id[:], crypto.Keccak256(data)[:4])
	return id, nil
}

func (p *Permission) ValidationId() (kernel.ValidationId, error) {
	id, err := p.ID()
	if err != nil {
		return kernel.ValidationId{}, err
	}
	return kernel.PermissionValidationId(id), nil
}

// Check runs every call through every policy.
func (p *Permission) Check(calls ...kernel.Call) error {
	for i, call := range calls {
		for _, policy := range p.Policies {
			if err := policy.Check(call); err != nil {
				return errors.WithMessagef(err, "call %d", i)
			}
		}
	}
	return nil
}

// DecodePermission parses validator data produced by ValidatorData. Policies
// are recognised by their contract address in addrs.
func DecodePermission(validatorData []byte, addrs kernel.Addresses) (*Permission, error) {
	out, err := validatorDataArgs.Unpack(validatorData)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidPermission, err.Error())
	}
	elements := out[0].([][]byte)
	if len(elements) < 2 {
		return nil, errors.Wrapf(ErrInvalidPermission, "%d elements", len(elements))
	}

	signerElem := elements[len(elements)-1]
	if len(signerElem) != 2+2*common.AddressLength {
		return nil, errors.Wrap(ErrInvalidPermission, "malformed signer element")
	}
	_, signerModule, signerData := splitElement(signerElem)
	if signerModule != addrs.ECDSASigner {
		return nil, errors.Wrapf(ErrInvalidPermission, "unknown signer module %s", signerModule.Hex())
	}
	perm := &Permission{
		SignerModule: signerModule,
		Signer:       common.BytesToAddress(signerData),
	}

	for i, elem := range elements[:len(elements)-1] {
		if len(elem) < 2+common.AddressLength {
			return nil, errors.Wrapf(ErrInvalidPermission, "policy element %d too short", i)
		}
		_, address, data := splitElement(elem)
		switch address {
		case addrs.SudoPolicy:
			perm.Policies = append(perm.Policies, NewSudoPolicy(address))
		case addrs.CallPolicy:
			policy, err := DecodeCallPolicy(address, data)
			if err != nil {
				return nil, errors.Wrap(ErrInvalidPermission, err.Error())
			}
			perm.Policies = append(perm.Policies, policy)
		default:
			return nil, errors.Wrapf(ErrInvalidPermission, "unknown policy %s", address.Hex())
		}
	}
	return perm, nil
}

func element(flag [2]byte, address common.Address, data []byte) []byte {
	out := make([]byte, 0, 2+common.AddressLength+len(data))
	out = append(out, flag[:]...)
	out = append(out, address.Bytes()...)
	return append(out, data...)
}

func splitElement(elem []byte) ([2]byte, common.Address, []byte) {
	var flag [2]byte
	copy(flag[:], elem[:2])
	return flag, common.BytesToAddress(elem[2 : 2+common.AddressLength]), elem[2+common.AddressLength:]
}
