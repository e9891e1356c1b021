package aasdk

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/bindings/account"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/bindings/entrypoint"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/kernel"
)

type Client struct {
	id         atomic.Uint64 // unique id for the client
	chainId    *big.Int
	config     *Config
	eth        *ethclient.Client
	http       *http.Client
	bundler    *rpcTransport
	paymaster  Paymaster
	factory    *account.KernelFactory
	entrypoint *entrypoint.EntryPoint
	lruCache   LRUCache
	logger     *zap.Logger
}

// NewClient validates config, dials the node and creates a new Client.
// Nothing is sent over the network when the config is incomplete.
func NewClient(ctx context.Context, config *Config, cache LRUCache) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: nil config", ErrMissingConfig)
	}
	config.applyProjectDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := config.logger()

	eth, err := ethclient.DialContext(ctx, config.NodeUrl)
	if err != nil {
		return nil, fmt.Errorf("error creating eth client: %w", err)
	}
	chainId, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting chain id: %w", err)
	}
	entrypoint, err := entrypoint.NewEntryPoint(config.Entrypoint, eth)
	if err != nil {
		return nil, fmt.Errorf("error creating entrypoint client: %w", err)
	}
	factory, err := account.NewKernelFactory(config.Kernel.Factory, eth)
	if err != nil {
		return nil, fmt.Errorf("error creating kernel factory client: %w", err)
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	c := &Client{
		chainId:    chainId,
		config:     config,
		eth:        eth,
		http:       http.DefaultClient,
		factory:    factory,
		entrypoint: entrypoint,
		lruCache:   cache,
		logger:     logger,
	}
	c.bundler = newRpcTransport(config.BundlerUrl, c.http, &c.id, limiter, logger.Named("bundler"))

	pmTransport := newRpcTransport(config.PaymasterUrl, c.http, &c.id, limiter, logger.Named("paymaster"))
	switch config.PaymasterKind {
	case PaymasterERC7677:
		c.paymaster = &ERC7677Paymaster{transport: pmTransport}
	case PaymasterNone:
	default:
		c.paymaster = &ZeroDevPaymaster{transport: pmTransport}
	}

	logger.Sugar().Infow("client ready",
		"chainId", chainId.String(),
		"entrypoint", config.Entrypoint.Hex(),
		"paymaster", string(config.PaymasterKind),
	)
	return c, nil
}

// UsePaymaster replaces the paymaster built from the config. Passing nil
// disables sponsorship.
func (c *Client) UsePaymaster(p Paymaster) {
	c.paymaster = p
}

// CreateKernelAccount resolves the Kernel account owned by owner through the
// ECDSA root validator. The address is read from the factory and cached.
func (c *Client) CreateKernelAccount(ctx context.Context, owner Signer, opts ...AccountOption) (*KernelAccount, error) {
	o := accountOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	initData, address, err := c.resolveAccount(ctx, owner.Address(), o.index)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("kernel account resolved",
		zap.String("address", address.Hex()),
		zap.String("owner", owner.Address().Hex()),
		zap.Uint64("index", o.index),
	)
	return &KernelAccount{
		client:   c,
		address:  address,
		owner:    owner.Address(),
		index:    o.index,
		initData: initData,
		signer:   owner,
	}, nil
}

func (c *Client) resolveAccount(ctx context.Context, owner common.Address, index uint64) ([]byte, common.Address, error) {
	initData, err := kernel.InitializeData(c.config.Kernel, owner)
	if err != nil {
		return nil, common.Address{}, err
	}
	salt := kernel.Salt(index)

	key := fmt.Sprintf("%s-%s-%d", c.config.Kernel.Factory.Hex(), owner.Hex(), index)
	if c.lruCache != nil {
		if addr, ok := c.lruCache.Get(key); ok {
			return initData, addr, nil
		}
	}
	addr, err := c.factory.GetAddress(&bind.CallOpts{Context: ctx}, initData, salt)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("error getting account address: %w", err)
	}
	if c.lruCache != nil {
		c.lruCache.Set(key, addr)
	}
	return initData, addr, nil
}

// GetAccountBalance returns the balance of the given account.
func (c *Client) GetAccountBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.eth.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("error getting account balance: %w", err)
	}
	return balance, nil
}

// PrepareUserOperation builds the unsigned operation executing calls:
// nonce, deployment args, default or estimated gas and a dummy signature.
func (c *Client) PrepareUserOperation(ctx context.Context, account SmartAccount, calls ...Call) (*UserOperation, error) {
	callData, err := account.EncodeCalls(calls...)
	if err != nil {
		return nil, err
	}
	key, err := account.NonceKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting nonce key: %w", err)
	}
	nonce, err := c.entrypoint.GetNonce(&bind.CallOpts{Context: ctx}, account.Address(), key)
	if err != nil {
		return nil, fmt.Errorf("error getting nonce: %w", err)
	}
	factory, factoryData, err := account.FactoryArgs(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting account init code: %w", err)
	}

	op := NewUserOpWithDefault(account.Address(), callData)
	op.Nonce = nonce
	op.Factory = factory
	op.FactoryData = factoryData
	if op.Signature, err = account.DummySignature(op); err != nil {
		return nil, fmt.Errorf("error building dummy signature: %w", err)
	}

	if c.config.EstimateGas {
		estimates, err := c.EstimateUserOpGas(ctx, op)
		if err != nil {
			return nil, err
		}
		op.CallGasLimit = estimates.CallGasLimit
		op.VerificationGasLimit = estimates.VerificationGasLimit
		op.PreVerificationGas = estimates.PreVerificationGas
		if estimates.PaymasterVerificationGasLimit != nil {
			op.PaymasterVerificationGasLimit = estimates.PaymasterVerificationGasLimit
		}
		if estimates.PaymasterPostOpGasLimit != nil {
			op.PaymasterPostOpGasLimit = estimates.PaymasterPostOpGasLimit
		}
	}
	c.logger.Debug("user operation prepared",
		zap.String("sender", op.Sender.Hex()),
		zap.String("nonce", op.Nonce.String()),
		zap.Bool("deploy", factory != (common.Address{})),
	)
	return op, nil
}

// SponsorUserOperation asks the paymaster to pay for userOp and returns the
// sponsored copy. The operation must be signed after this step.
func (c *Client) SponsorUserOperation(ctx context.Context, userOp *UserOperation) (*UserOperation, error) {
	if c.paymaster == nil {
		return nil, fmt.Errorf("%w: no paymaster configured", ErrMissingConfig)
	}
	result, err := c.paymaster.SponsorUserOperation(ctx, userOp.Copy(), c.config.Entrypoint, c.chainId)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("user operation sponsored", zap.String("paymaster", result.Paymaster.Hex()))
	return result.Apply(userOp.Copy()), nil
}

// ChainId returns the chain ID of the node.
func (c *Client) ChainId() *big.Int {
	return new(big.Int).Set(c.chainId)
}

// Eth returns the node client, e.g. to bind contracts for reads.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

func (c *Client) Config() *Config {
	return c.config
}

func (c *Client) Logger() *zap.Logger {
	return c.logger
}

// Close releases the node connection.
func (c *Client) Close() {
	c.eth.Close()
}
