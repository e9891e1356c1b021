package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var accountCommand = &cli.Command{
	Name:  "account",
	Usage: "Print the owner's Kernel account address and whether it is deployed",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:  "index",
			Usage: "Account index",
		},
	},
	Action: accountAction,
}

func accountAction(c *cli.Context) error {
	client, _, err := newClient(c)
	if err != nil {
		return err
	}
	defer client.Close()

	account, err := ownerAccount(c, client, c.Uint64("index"))
	if err != nil {
		return err
	}
	deployed, err := account.IsDeployed(c.Context)
	if err != nil {
		return err
	}
	balance, err := client.GetAccountBalance(c.Context, account.Address())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "address:  %s\nowner:    %s\ndeployed: %t\nbalance:  %s\n",
		account.Address().Hex(), account.Owner().Hex(), deployed, balance.String())
	return nil
}
