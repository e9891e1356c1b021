package aasdk

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	MessagePrefix = "\x19Ethereum Signed Message:\n"
)

// Signer produces ECDSA signatures with v in {27, 28}.
type Signer interface {
	Address() common.Address
	// SignHash signs the hash as is.
	SignHash(hash common.Hash) ([]byte, error)
	// SignMessage signs the EIP-191 personal message hash of message.
	SignMessage(message []byte) ([]byte, error)
}

// LocalSigner signs with an in-memory private key.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

var _ Signer = (*LocalSigner)(nil)

// NewSignerFromHex parses a hex private key, with or without 0x prefix.
func NewSignerFromHex(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return NewSigner(key), nil
}

func NewSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*LocalSigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewSigner(key), nil
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignHash(hash common.Hash) ([]byte, error) {
	signature, err := crypto.Sign(hash.Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign hash: %w", err)
	}
	signature[crypto.RecoveryIDOffset] += 27
	return signature, nil
}

func (s *LocalSigner) SignMessage(message []byte) ([]byte, error) {
	return SignMessage(s.key, message)
}

// PrivateKeyHex returns the 0x prefixed private key.
func (s *LocalSigner) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(s.key))
}

// AddressSigner knows only an address. The owner uses it to describe a
// session key it never holds.
type AddressSigner common.Address

var _ Signer = AddressSigner{}

func (a AddressSigner) Address() common.Address {
	return common.Address(a)
}

func (a AddressSigner) SignHash(common.Hash) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrSignerCannotSign, common.Address(a).Hex())
}

func (a AddressSigner) SignMessage([]byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrSignerCannotSign, common.Address(a).Hex())
}

// SignMessage signs a message with the provided private key.
func SignMessage(privateKey *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	signature, err := crypto.Sign(MessageHash(message).Bytes(), privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	signature[crypto.RecoveryIDOffset] += 27
	return signature, nil
}

// MessageHash returns the EIP-191 personal message hash.
func MessageHash(message []byte) common.Hash {
	prefixedMessage := fmt.Sprintf("%s%d", MessagePrefix, len(message))
	return crypto.Keccak256Hash([]byte(prefixedMessage), message)
}

// RecoverSigner returns the address that produced a 65 byte signature over hash.
// Both v in {0, 1} and {27, 28} are accepted.
func RecoverSigner(hash common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(signature))
	}
	sig := common.CopyBytes(signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// RecoverMessageSigner is RecoverSigner over the EIP-191 hash of message.
func RecoverMessageSigner(message []byte, signature []byte) (common.Address, error) {
	return RecoverSigner(MessageHash(message), signature)
}
