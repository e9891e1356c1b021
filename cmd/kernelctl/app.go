package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	aasdk "github.com/lifenetwork-ai/aa-kernel-sdk-go"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/internal/logger"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/store"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/store/badger"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/store/memory"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/store/redis"
)

const (
	storeMemory = "memory"
	storeBadger = "badger"
	storeRedis  = "redis"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "kernelctl",
		Usage: "Manage Kernel v3.1 smart accounts and their session keys",
		Description: `Owner and agent tooling for ZeroDev Kernel accounts.

The owner approves session keys and revokes them later. Issued approvals are
recorded in a local store so they can be listed and revoked by session key.
The agent turns an approval and its private key into a usable account.`,
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "Owner private key (hex)",
				EnvVars: []string{aasdk.EnvPrivateKey},
			},
			&cli.StringFlag{
				Name:    "project-id",
				Usage:   "ZeroDev project id, derives the bundler and paymaster urls",
				EnvVars: []string{aasdk.EnvZeroDevProjectId},
			},
			&cli.StringFlag{
				Name:    "bundler-rpc",
				Usage:   "Bundler url",
				EnvVars: []string{aasdk.EnvBundlerRpc},
			},
			&cli.StringFlag{
				Name:    "paymaster-rpc",
				Usage:   "Paymaster url",
				EnvVars: []string{aasdk.EnvPaymasterRpc},
			},
			&cli.StringFlag{
				Name:    "node-rpc",
				Usage:   "Node url, defaults to the bundler url",
				EnvVars: []string{aasdk.EnvNodeRpc},
			},
			&cli.StringFlag{
				Name:  "paymaster",
				Usage: "Paymaster protocol: zerodev, erc7677 or none",
				Value: string(aasdk.PaymasterZeroDev),
			},
			&cli.DurationFlag{
				Name:  "receipt-interval",
				Usage: "How often to poll for a receipt",
				Value: aasdk.DefaultWaitReceiptInterval,
			},
			&cli.DurationFlag{
				Name:  "receipt-timeout",
				Usage: "How long to wait for a receipt",
				Value: aasdk.DefaultWaitReceiptTimeout,
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Approval store: memory, badger or redis",
				Value: storeBadger,
			},
			&cli.StringFlag{
				Name:  "store-path",
				Usage: "Badger data directory",
				Value: "./data/approvals",
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis host:port",
				EnvVars: []string{"REDIS_ADDRESS"},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				EnvVars: []string{"REDIS_PASSWORD"},
			},
			&cli.IntFlag{
				Name: "redis-db",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			accountCommand,
			sessionCommand,
			swapCommand,
			devnetCommand,
		},
	}
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	return logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("debug")})
}

func configFromFlags(c *cli.Context, l *zap.Logger) *aasdk.Config {
	config := aasdk.DefaultConfig()
	config.PrivateKey = c.String("private-key")
	config.ProjectId = c.String("project-id")
	config.BundlerUrl = c.String("bundler-rpc")
	config.PaymasterUrl = c.String("paymaster-rpc")
	config.NodeUrl = c.String("node-rpc")
	config.PaymasterKind = aasdk.PaymasterKind(c.String("paymaster"))
	config.WaitReceiptInterval = c.Duration("receipt-interval")
	config.WaitReceiptTimeout = c.Duration("receipt-timeout")
	config.Logger = l
	return config
}

// newClient builds the SDK client from the global flags.
func newClient(c *cli.Context) (*aasdk.Client, *zap.Logger, error) {
	l, err := newLogger(c)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	client, err := aasdk.NewClient(c.Context, configFromFlags(c, l), aasdk.NewLRUCache(100))
	if err != nil {
		return nil, nil, err
	}
	return client, l, nil
}

func ownerAccount(c *cli.Context, client *aasdk.Client, index uint64) (*aasdk.KernelAccount, error) {
	owner, err := client.Config().OwnerSigner()
	if err != nil {
		return nil, err
	}
	return client.CreateKernelAccount(c.Context, owner, aasdk.WithIndex(index))
}

func openStore(c *cli.Context, l *zap.Logger) (store.ApprovalStore, error) {
	switch kind := c.String("store"); kind {
	case storeMemory:
		return memory.New(), nil
	case storeBadger:
		return badger.New(c.String("store-path"), l)
	case storeRedis:
		return redis.New(&redis.Config{
			Address:  c.String("redis-address"),
			Password: c.String("redis-password"),
			DB:       c.Int("redis-db"),
		}, l)
	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
