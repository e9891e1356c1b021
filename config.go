package aasdk

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/kernel"
)

const (
	EnvPrivateKey       = "PRIVATE_KEY"
	EnvZeroDevProjectId = "ZERODEV_PROJECT_ID"
	EnvBundlerRpc       = "BUNDLER_RPC"
	EnvPaymasterRpc     = "PAYMASTER_RPC"
	EnvNodeRpc          = "NODE_RPC"

	zeroDevRpcBase = "https://rpc.zerodev.app/api/v2"

	DefaultWaitReceiptInterval = 2 * time.Second
	DefaultWaitReceiptTimeout  = 30 * time.Second
)

// PaymasterKind selects the sponsorship protocol spoken by the paymaster url.
type PaymasterKind string

const (
	PaymasterZeroDev PaymasterKind = "zerodev"
	PaymasterERC7677 PaymasterKind = "erc7677"
	PaymasterNone    PaymasterKind = "none"
)

type Config struct {
	// The url of node. Defaults to the bundler url, which proxies eth_* calls.
	NodeUrl string
	// The url of bundler.
	BundlerUrl string
	// The url of the sponsoring paymaster.
	PaymasterUrl string
	PaymasterKind PaymasterKind
	// ZeroDev project id, used to derive the bundler and paymaster urls.
	ProjectId string
	// Hex encoded owner private key.
	PrivateKey string
	// The interval to query the receipt.
	WaitReceiptInterval time.Duration
	// How long to wait for a receipt before giving up.
	WaitReceiptTimeout time.Duration
	// The entrypoint address.
	// Currently, it supports Entrypoint V0.7.0
	Entrypoint common.Address
	// Kernel v3.1 contract addresses.
	Kernel kernel.Addresses
	// Ask the bundler for gas limits before sponsorship.
	EstimateGas bool
	// Client side rate limit for bundler and paymaster calls. Zero disables it.
	RequestsPerSecond float64
	Logger            *zap.Logger
}

// DefaultConfig returns a config with the public Kernel v3.1 deployments.
func DefaultConfig() *Config {
	addrs := kernel.DefaultAddresses()
	return &Config{
		PaymasterKind:       PaymasterZeroDev,
		WaitReceiptInterval: DefaultWaitReceiptInterval,
		WaitReceiptTimeout:  DefaultWaitReceiptTimeout,
		Entrypoint:          addrs.EntryPoint,
		Kernel:              addrs,
		EstimateGas:         true,
		Logger:              zap.NewNop(),
	}
}

// LoadConfigFromEnv builds a config from environment variables. Explicit
// BUNDLER_RPC / PAYMASTER_RPC win over urls derived from ZERODEV_PROJECT_ID.
func LoadConfigFromEnv(getenv func(string) string) (*Config, error) {
	c := DefaultConfig()
	c.PrivateKey = getenv(EnvPrivateKey)
	c.ProjectId = getenv(EnvZeroDevProjectId)
	c.BundlerUrl = getenv(EnvBundlerRpc)
	c.PaymasterUrl = getenv(EnvPaymasterRpc)
	c.NodeUrl = getenv(EnvNodeRpc)
	c.applyProjectDefaults()

	errs := c.validate()
	if c.PrivateKey == "" {
		errs = append(errs, field.Required(field.NewPath(EnvPrivateKey), "owner private key is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, errs.ToAggregate().Error())
	}
	return c, nil
}

func (c *Config) applyProjectDefaults() {
	if c.ProjectId != "" {
		if c.BundlerUrl == "" {
			c.BundlerUrl = fmt.Sprintf("%s/bundler/%s", zeroDevRpcBase, c.ProjectId)
		}
		if c.PaymasterUrl == "" {
			c.PaymasterUrl = fmt.Sprintf("%s/paymaster/%s", zeroDevRpcBase, c.ProjectId)
		}
	}
	if c.NodeUrl == "" {
		c.NodeUrl = c.BundlerUrl
	}
}

// Validate checks that every service the client talks to is configured.
func (c *Config) Validate() error {
	if errs := c.validate(); len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, errs.ToAggregate().Error())
	}
	return nil
}

func (c *Config) validate() field.ErrorList {
	var allErrs field.ErrorList

	checkUrl := func(name, value string, required bool) {
		path := field.NewPath(name)
		if value == "" {
			if required {
				allErrs = append(allErrs, field.Required(path, "url is required"))
			}
			return
		}
		if u, err := url.Parse(value); err != nil || u.Scheme == "" || u.Host == "" {
			allErrs = append(allErrs, field.Invalid(path, value, "must be an absolute url"))
		}
	}
	checkUrl("bundlerUrl", c.BundlerUrl, true)
	checkUrl("nodeUrl", c.NodeUrl, true)
	checkUrl("paymasterUrl", c.PaymasterUrl, c.PaymasterKind != PaymasterNone)

	switch c.PaymasterKind {
	case PaymasterZeroDev, PaymasterERC7677, PaymasterNone:
	default:
		allErrs = append(allErrs, field.NotSupported(field.NewPath("paymasterKind"), c.PaymasterKind,
			[]PaymasterKind{PaymasterZeroDev, PaymasterERC7677, PaymasterNone}))
	}
	if c.Entrypoint == (common.Address{}) {
		allErrs = append(allErrs, field.Required(field.NewPath("entrypoint"), "entrypoint address is required"))
	}
	if c.Kernel.Factory == (common.Address{}) || c.Kernel.ECDSAValidator == (common.Address{}) {
		allErrs = append(allErrs, field.Required(field.NewPath("kernel"), "kernel addresses are required"))
	}
	if c.WaitReceiptInterval <= 0 {
		allErrs = append(allErrs, field.Invalid(field.NewPath("waitReceiptInterval"), c.WaitReceiptInterval.String(), "must be positive"))
	}
	if c.WaitReceiptTimeout <= 0 {
		allErrs = append(allErrs, field.Invalid(field.NewPath("waitReceiptTimeout"), c.WaitReceiptTimeout.String(), "must be positive"))
	}
	if c.RequestsPerSecond < 0 {
		allErrs = append(allErrs, field.Invalid(field.NewPath("requestsPerSecond"), c.RequestsPerSecond, "must not be negative"))
	}
	return allErrs
}

// OwnerSigner returns the signer for the configured private key.
func (c *Config) OwnerSigner() (*LocalSigner, error) {
	if c.PrivateKey == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrMissingConfig, EnvPrivateKey)
	}
	return NewSignerFromHex(c.PrivateKey)
}

func (c *Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
