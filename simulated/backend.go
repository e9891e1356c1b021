// Package simulated runs an in-process chain that speaks the node, bundler
// and paymaster JSON-RPC methods the SDK uses. Accounts behave like Kernel
// v3.1 accounts on EntryPoint v0.7: signatures, enable mode, permissions and
// their policies, nonces and paymaster signatures are all enforced.
package simulated

import (
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	aasdk "github.com/lifenetwork-ai/aa-kernel-sdk-go"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/bindings/entrypoint"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/bindings/nft"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/kernel"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/permission"
)

const DefaultChainId = 31337

// DefaultPaymasterAddress is where the verifying paymaster lives.
var DefaultPaymasterAddress = common.HexToAddress("0x00000000000000000000000000000000000fa1f0")

type Config struct {
	ChainId   *big.Int
	Addresses kernel.Addresses
	// Signs sponsorships. A random key is used when nil.
	PaymasterSigner  aasdk.Signer
	PaymasterAddress common.Address
	// Bundle executors, rotated per included operation. Two random keys
	// are used when empty.
	Executors []aasdk.Signer
	Logger    *zap.Logger
}

// validation is the installed state of a permission.
type validation struct {
	nonce      uint32
	hook       common.Address
	permission *permission.Permission
}

// kernelAccount is the storage of a deployed Kernel account.
type kernelAccount struct {
	owner          common.Address
	rootValidator  kernel.ValidationId
	currentNonce   uint32
	validNonceFrom uint32
	validations    map[kernel.ValidationId]*validation
}

// Backend is the state of the simulated chain.
type Backend struct {
	mu sync.Mutex

	chainId   *big.Int
	addrs     kernel.Addresses
	paymaster *aasdk.VerifyingPaymaster
	pmSigner  common.Address
	executors aasdk.Rotator[aasdk.Signer]
	logger    *zap.Logger

	accounts  map[common.Address]*kernelAccount
	balances  map[common.Address]*big.Int
	deposits  map[common.Address]*big.Int
	nonces    map[common.Address]map[string]uint64
	contracts map[common.Address]Contract
	receipts  map[common.Hash]*aasdk.UserOpReceipt
	pending   map[common.Hash]struct{}
	block     uint64

	stall             atomic.Bool
	rejectSponsorship atomic.Bool
	requests          atomic.Int64

	entryPointABI *abi.ABI
	factoryABI    *abi.ABI
	accountABI    *abi.ABI
}

func DefaultConfig() Config {
	return Config{
		ChainId:          big.NewInt(DefaultChainId),
		Addresses:        kernel.DefaultAddresses(),
		PaymasterAddress: DefaultPaymasterAddress,
		Logger:           zap.NewNop(),
	}
}

// NewBackend creates a chain with the demo NFT deployed.
func NewBackend(config Config) (*Backend, error) {
	if config.ChainId == nil || config.ChainId.Sign() <= 0 {
		return nil, fmt.Errorf("invalid chain id")
	}
	if config.Addresses.EntryPoint == (common.Address{}) {
		config.Addresses = kernel.DefaultAddresses()
	}
	if config.PaymasterAddress == (common.Address{}) {
		config.PaymasterAddress = DefaultPaymasterAddress
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.PaymasterSigner == nil {
		signer, err := aasdk.GenerateSigner()
		if err != nil {
			return nil, err
		}
		config.PaymasterSigner = signer
	}
	if len(config.Executors) == 0 {
		for i := 0; i < 2; i++ {
			signer, err := aasdk.GenerateSigner()
			if err != nil {
				return nil, err
			}
			config.Executors = append(config.Executors, signer)
		}
	}

	entryPointABI, err := entrypoint.EntryPointMetaData.GetAbi()
	if err != nil {
		return nil, err
	}

	b := &Backend{
		chainId:   new(big.Int).Set(config.ChainId),
		addrs:     config.Addresses,
		paymaster: aasdk.NewVerifyingPaymaster(config.PaymasterAddress, config.PaymasterSigner),
		pmSigner:  config.PaymasterSigner.Address(),
		executors: aasdk.NewRoundRobinSignerProvider(config.Executors),
		logger:    config.Logger,

		accounts:  make(map[common.Address]*kernelAccount),
		balances:  make(map[common.Address]*big.Int),
		deposits:  make(map[common.Address]*big.Int),
		nonces:    make(map[common.Address]map[string]uint64),
		contracts: make(map[common.Address]Contract),
		receipts:  make(map[common.Hash]*aasdk.UserOpReceipt),
		pending:   make(map[common.Hash]struct{}),
		block:     1,

		entryPointABI: entryPointABI,
		factoryABI:    kernel.FactoryABI(),
		accountABI:    kernel.AccountABI(),
	}
	b.contracts[nft.ContractAddress] = NewNFT()
	return b, nil
}

// NewDefaultBackend is NewBackend(DefaultConfig()).
func NewDefaultBackend() (*Backend, error) {
	return NewBackend(DefaultConfig())
}

func (b *Backend) ChainId() *big.Int {
	return new(big.Int).Set(b.chainId)
}

func (b *Backend) Addresses() kernel.Addresses {
	return b.addrs
}

// Paymaster returns the verifying paymaster sponsoring operations.
func (b *Backend) Paymaster() *aasdk.VerifyingPaymaster {
	return b.paymaster
}

// SetStall makes the bundler accept operations without ever including them.
func (b *Backend) SetStall(stall bool) {
	b.stall.Store(stall)
}

// SetRejectSponsorship makes the paymaster refuse every operation.
func (b *Backend) SetRejectSponsorship(reject bool) {
	b.rejectSponsorship.Store(reject)
}

// Requests returns the number of HTTP requests served so far.
func (b *Backend) Requests() int64 {
	return b.requests.Load()
}

// Deploy places a contract at addr.
func (b *Backend) Deploy(addr common.Address, contract Contract) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contracts[addr] = contract
}

// Contract returns the contract deployed at addr.
func (b *Backend) Contract(addr common.Address) (Contract, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.contracts[addr]
	return c, ok
}

// Fund credits amount wei to addr.
func (b *Backend) Fund(addr common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] = new(big.Int).Add(b.balanceOf(addr), amount)
}

func (b *Backend) Balance(addr common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balanceOf(addr))
}

// IsDeployed reports whether a Kernel account lives at addr.
func (b *Backend) IsDeployed(addr common.Address) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.accounts[addr]
	return ok
}

// IsInstalled reports whether the validation is installed and still valid
// on the account.
func (b *Backend) IsInstalled(addr common.Address, vId kernel.ValidationId) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.accounts[addr]
	if !ok {
		return false
	}
	v, ok := acct.validations[vId]
	return ok && v.nonce >= acct.validNonceFrom
}

// BlockNumber returns the number of the next block.
func (b *Backend) BlockNumber() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.block
}

// AccountAddress returns the counterfactual address the factory assigns to
// initData and salt.
func (b *Backend) AccountAddress(initData []byte, salt [32]byte) common.Address {
	return crypto.CreateAddress2(
		b.addrs.Factory,
		crypto.Keccak256Hash(initData, salt[:]),
		crypto.Keccak256(b.addrs.Implementation.Bytes()),
	)
}

// ClientConfig returns an SDK config talking to the chain served at url.
func (b *Backend) ClientConfig(url string) *aasdk.Config {
	config := aasdk.DefaultConfig()
	config.NodeUrl = url
	config.BundlerUrl = url
	config.PaymasterUrl = url
	config.Entrypoint = b.addrs.EntryPoint
	config.Kernel = b.addrs
	return config
}

func (b *Backend) balanceOf(addr common.Address) *big.Int {
	if bal, ok := b.balances[addr]; ok {
		return bal
	}
	return new(big.Int)
}

func (b *Backend) depositOf(addr common.Address) *big.Int {
	if dep, ok := b.deposits[addr]; ok {
		return dep
	}
	return new(big.Int)
}

func (b *Backend) nonceOf(sender common.Address, key *big.Int) uint64 {
	return b.nonces[sender][key.String()]
}

func (b *Backend) code(addr common.Address) []byte {
	if _, ok := b.accounts[addr]; ok {
		// ERC-1967 proxy marker followed by the implementation.
		return append([]byte{0x36, 0x3d, 0x3d, 0x37}, b.addrs.Implementation.Bytes()...)
	}
	if _, ok := b.contracts[addr]; ok {
		return []byte{0x60, 0x80, 0x60, 0x40}
	}
	switch addr {
	case b.addrs.EntryPoint, b.addrs.Factory, b.addrs.MetaFactory, b.paymaster.Address():
		return []byte{0x60, 0x80, 0x60, 0x40}
	}
	return nil
}
