package kernel

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ValidationMode selects how the account interprets the user op signature.
type ValidationMode byte

const (
	ValidationModeDefault ValidationMode = 0x00
	ValidationModeEnable  ValidationMode = 0x01
)

// ValidationType identifies what kind of validation the nonce key refers to.
type ValidationType byte

const (
	ValidationTypeRoot       ValidationType = 0x00
	ValidationTypeValidator  ValidationType = 0x01
	ValidationTypePermission ValidationType = 0x02
)

// NonceKey is the decoded 192-bit EntryPoint nonce key of a Kernel v3 account:
// mode (1) | type (1) | identifier (20) | key (2).
type NonceKey struct {
	Mode       ValidationMode
	Type       ValidationType
	Identifier [20]byte
	Key        uint16
}

// Big returns the key as the uint192 expected by EntryPoint.getNonce.
func (k NonceKey) Big() *big.Int {
	var raw [24]byte
	raw[0] = byte(k.Mode)
	raw[1] = byte(k.Type)
	copy(raw[2:22], k.Identifier[:])
	binary.BigEndian.PutUint16(raw[22:], k.Key)
	return new(big.Int).SetBytes(raw[:])
}

// NewValidatorNonceKey builds the key for a root or regular validator module.
func NewValidatorNonceKey(mode ValidationMode, vType ValidationType, validator common.Address) NonceKey {
	k := NonceKey{Mode: mode, Type: vType}
	copy(k.Identifier[:], validator.Bytes())
	return k
}

// NewPermissionNonceKey builds the key for a permission; the id is left aligned.
func NewPermissionNonceKey(mode ValidationMode, permissionId [4]byte) NonceKey {
	k := NonceKey{Mode: mode, Type: ValidationTypePermission}
	copy(k.Identifier[:], permissionId[:])
	return k
}

// DecodeNonce splits a full EntryPoint nonce into its key and sequence.
func DecodeNonce(nonce *big.Int) (NonceKey, uint64) {
	raw := common.LeftPadBytes(nonce.Bytes(), 32)
	k := NonceKey{
		Mode: ValidationMode(raw[0]),
		Type: ValidationType(raw[1]),
		Key:  binary.BigEndian.Uint16(raw[22:24]),
	}
	copy(k.Identifier[:], raw[2:22])
	return k, binary.BigEndian.Uint64(raw[24:])
}

// PermissionId returns the permission id carried by a permission nonce key.
func (k NonceKey) PermissionId() [4]byte {
	var id [4]byte
	copy(id[:], k.Identifier[:4])
	return id
}

// EncodeNonceKey packs a nonce key from its parts. Identifiers longer than 20
// bytes are truncated; shorter ones are left aligned.
func EncodeNonceKey(mode ValidationMode, vType ValidationType, identifier []byte, key uint16) *big.Int {
	k := NonceKey{Mode: mode, Type: vType, Key: key}
	copy(k.Identifier[:], identifier)
	return k.Big()
}

// DecodeNonceKey unpacks a 192-bit key as returned by EncodeNonceKey.
func DecodeNonceKey(key *big.Int) NonceKey {
	k, _ := DecodeNonce(new(big.Int).Lsh(key, 64))
	return k
}
