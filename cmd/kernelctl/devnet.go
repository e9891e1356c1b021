package main

import (
	"fmt"
	"math/big"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	aasdk "github.com/lifenetwork-ai/aa-kernel-sdk-go"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/simulated"
)

var devnetCommand = &cli.Command{
	Name:  "devnet",
	Usage: "Serve a simulated chain with a bundler and paymaster for local testing",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Usage: "Listen address",
			Value: "127.0.0.1:8545",
		},
		&cli.StringSliceFlag{
			Name:  "fund",
			Usage: "Address to credit with 1 ether, repeatable",
		},
	},
	Action: devnetAction,
}

func devnetAction(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	config := simulated.DefaultConfig()
	config.Logger = l.Named("devnet")
	backend, err := simulated.NewBackend(config)
	if err != nil {
		return err
	}
	for _, addr := range c.StringSlice("fund") {
		account, err := parseAddress("fund address", addr)
		if err != nil {
			return err
		}
		backend.Fund(account, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	}

	server, err := simulated.NewServer(backend, c.String("addr"))
	if err != nil {
		return err
	}
	defer server.Close()

	addrs := backend.Addresses()
	fmt.Fprintf(c.App.Writer, "%s=%s\n%s=%s\n%s=%s\n",
		aasdk.EnvBundlerRpc, server.URL(), aasdk.EnvPaymasterRpc, server.URL(), aasdk.EnvNodeRpc, server.URL())
	l.Info("devnet ready",
		zap.String("entrypoint", addrs.EntryPoint.Hex()),
		zap.String("factory", addrs.Factory.Hex()),
		zap.String("paymaster", simulated.DefaultPaymasterAddress.Hex()),
		zap.Stringer("chainId", backend.ChainId()),
	)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	l.Info("devnet stopping", zap.Uint64("blocks", backend.BlockNumber()))
	return nil
}
