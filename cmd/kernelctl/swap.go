package main

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/defi"
)

var swapCommand = &cli.Command{
	Name:  "swap",
	Usage: "Swap tokens from the owner's account through the ZeroDev defi API",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "from",
			Usage: "Token symbol or address to sell",
			Value: defi.USDC,
		},
		&cli.StringFlag{
			Name:  "to",
			Usage: "Token symbol or address to buy",
			Value: defi.USDT,
		},
		&cli.StringFlag{
			Name:     "amount",
			Usage:    "Amount to sell in the token's smallest unit",
			Required: true,
		},
		&cli.UintFlag{
			Name:  "slippage",
			Usage: "Slippage in basis points",
			Value: 300,
		},
		&cli.StringFlag{
			Name:  "defi-url",
			Usage: "Defi API base url",
			Value: defi.DefaultBaseUrl,
		},
		&cli.Uint64Flag{
			Name:  "index",
			Usage: "Account index",
		},
	},
	Action: swapAction,
}

func tokenAddress(chainId uint64, value string) (common.Address, error) {
	if common.IsHexAddress(value) {
		return common.HexToAddress(value), nil
	}
	if addr, ok := defi.TokenAddress(chainId, value); ok {
		return addr, nil
	}
	return common.Address{}, fmt.Errorf("unknown token %q on chain %d", value, chainId)
}

func swapAction(c *cli.Context) error {
	amount, ok := new(big.Int).SetString(c.String("amount"), 10)
	if !ok {
		return fmt.Errorf("invalid amount: %q", c.String("amount"))
	}
	client, l, err := newClient(c)
	if err != nil {
		return err
	}
	defer client.Close()

	config := client.Config()
	if config.ProjectId == "" {
		return fmt.Errorf("--project-id is required for swaps")
	}
	chainId := client.ChainId().Uint64()
	fromToken, err := tokenAddress(chainId, c.String("from"))
	if err != nil {
		return err
	}
	toToken, err := tokenAddress(chainId, c.String("to"))
	if err != nil {
		return err
	}
	account, err := ownerAccount(c, client, c.Uint64("index"))
	if err != nil {
		return err
	}

	defiClient, err := defi.NewClient(config.ProjectId,
		defi.WithBaseUrl(c.String("defi-url")),
		defi.WithLogger(l.Named("defi")),
	)
	if err != nil {
		return err
	}
	swap, err := defiClient.GetSwapData(c.Context, defi.SwapRequest{
		FromAddress: account.Address(),
		FromToken:   fromToken,
		FromAmount:  amount,
		ToAddress:   account.Address(),
		ToToken:     toToken,
		ChainId:     chainId,
		Slippage:    uint32(c.Uint("slippage")),
	})
	if err != nil {
		return err
	}

	hash, err := client.SendUserOperation(c.Context, account, swap.Call())
	if err != nil {
		return err
	}
	l.Info("swap submitted", zap.String("hash", hash.Hex()), zap.String("target", swap.TargetAddress.Hex()))
	receipt, err := client.WaitForUserOperation(c.Context, hash)
	if err != nil {
		return err
	}
	if !receipt.Success {
		return fmt.Errorf("swap %s reverted: %s", hash.Hex(), receipt.Reason)
	}
	fmt.Fprintln(c.App.Writer, receipt.TxHash().Hex())
	return nil
}
