package main

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	aasdk "github.com/lifenetwork-ai/aa-kernel-sdk-go"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/bindings/nft"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/permission"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/store"
)

const (
	policySudo    = "sudo"
	policyMintNFT = "mint-nft"
)

var sessionCommand = &cli.Command{
	Name:  "session",
	Usage: "Approve, use, list and revoke session keys",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "Approve a session key address and print the serialized approval",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "session-key",
					Usage:    "Address of the agent's session key",
					Required: true,
				},
				&cli.StringFlag{
					Name:  "policy",
					Usage: "sudo, or mint-nft to only allow minting the demo NFT to the account",
					Value: policyMintNFT,
				},
				&cli.Uint64Flag{
					Name:  "index",
					Usage: "Account index",
				},
				&cli.StringFlag{
					Name:  "label",
					Usage: "Free text stored with the record",
				},
			},
			Action: sessionCreateAction,
		},
		{
			Name:  "use",
			Usage: "Send an operation with a session key",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "approval",
					Usage:    "Serialized approval, or the id of a stored record",
					Required: true,
				},
				&cli.StringFlag{
					Name:     "session-private-key",
					Usage:    "Session key (hex)",
					EnvVars:  []string{"SESSION_PRIVATE_KEY"},
					Required: true,
				},
				&cli.StringFlag{
					Name:  "to",
					Usage: "Call target. Mints the demo NFT to the account when empty",
				},
				&cli.StringFlag{
					Name:  "data",
					Usage: "Hex call data",
					Value: "0x",
				},
				&cli.StringFlag{
					Name:  "value",
					Usage: "Wei to send with the call",
					Value: "0",
				},
			},
			Action: sessionUseAction,
		},
		{
			Name:  "revoke",
			Usage: "Revoke stored approvals by record id or session key",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "id",
					Usage: "Record id",
				},
				&cli.StringFlag{
					Name:  "session-key",
					Usage: "Revoke every active approval of this session key",
				},
			},
			Action: sessionRevokeAction,
		},
		{
			Name:   "list",
			Usage:  "List stored approvals",
			Action: sessionListAction,
		},
	},
}

func parseAddress(name, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s: %q", name, value)
	}
	return common.HexToAddress(value), nil
}

func buildPolicy(client *aasdk.Client, account *aasdk.KernelAccount, kind string) (permission.Policy, error) {
	addrs := client.Config().Kernel
	switch kind {
	case policySudo:
		return permission.NewSudoPolicy(addrs.SudoPolicy), nil
	case policyMintNFT:
		nftABI, err := nft.NFTMetaData.GetAbi()
		if err != nil {
			return nil, err
		}
		mint, err := permission.NewCallPermission(nft.ContractAddress, nftABI, "mint", nil,
			permission.Arg(permission.Equal, account.Address()))
		if err != nil {
			return nil, err
		}
		return permission.NewCallPolicy(addrs.CallPolicy, mint)
	default:
		return nil, fmt.Errorf("unknown policy %q", kind)
	}
}

func sessionCreateAction(c *cli.Context) error {
	sessionKey, err := parseAddress("session key", c.String("session-key"))
	if err != nil {
		return err
	}
	client, l, err := newClient(c)
	if err != nil {
		return err
	}
	defer client.Close()

	approvals, err := openStore(c, l)
	if err != nil {
		return err
	}
	defer approvals.Close()

	account, err := ownerAccount(c, client, c.Uint64("index"))
	if err != nil {
		return err
	}
	policy, err := buildPolicy(client, account, c.String("policy"))
	if err != nil {
		return err
	}
	approval, err := client.ApprovePermission(c.Context, account, sessionKey, policy)
	if err != nil {
		return err
	}
	record, err := store.NewRecord(approval, client.Config().Kernel, c.String("label"))
	if err != nil {
		return err
	}
	if err := approvals.Save(record); err != nil {
		return err
	}
	l.Info("session key approved",
		zap.String("id", record.Id.String()),
		zap.String("account", record.Account.Hex()),
		zap.String("sessionKey", record.SessionKey.Hex()),
		zap.String("policy", c.String("policy")),
	)
	fmt.Fprintln(c.App.Writer, record.Approval)
	return nil
}

// resolveApproval accepts a serialized approval or a record id.
func resolveApproval(c *cli.Context, value string) (string, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return value, nil
	}
	l, err := newLogger(c)
	if err != nil {
		return "", err
	}
	approvals, err := openStore(c, l)
	if err != nil {
		return "", err
	}
	defer approvals.Close()
	record, err := approvals.Load(id)
	if err != nil {
		return "", err
	}
	if record.Revoked() {
		return "", fmt.Errorf("approval %s was revoked at %s", id, formatTime(record.RevokedAt))
	}
	return record.Approval, nil
}

func sessionUseAction(c *cli.Context) error {
	serialized, err := resolveApproval(c, c.String("approval"))
	if err != nil {
		return err
	}
	sessionKey, err := aasdk.NewSignerFromHex(c.String("session-private-key"))
	if err != nil {
		return err
	}
	client, l, err := newClient(c)
	if err != nil {
		return err
	}
	defer client.Close()

	account, err := client.DeserializePermissionAccount(c.Context, serialized, sessionKey)
	if err != nil {
		return err
	}
	call, err := callFromFlags(c, account.Address())
	if err != nil {
		return err
	}
	hash, err := client.SendUserOperation(c.Context, account, call)
	if err != nil {
		return err
	}
	l.Info("user operation sent", zap.String("hash", hash.Hex()))
	receipt, err := client.WaitForUserOperation(c.Context, hash)
	if err != nil {
		return err
	}
	if !receipt.Success {
		return fmt.Errorf("user operation %s reverted: %s", hash.Hex(), receipt.Reason)
	}
	fmt.Fprintln(c.App.Writer, receipt.TxHash().Hex())
	return nil
}

func callFromFlags(c *cli.Context, account common.Address) (aasdk.Call, error) {
	if c.String("to") == "" {
		nftABI, err := nft.NFTMetaData.GetAbi()
		if err != nil {
			return aasdk.Call{}, err
		}
		data, err := nftABI.Pack("mint", account)
		if err != nil {
			return aasdk.Call{}, err
		}
		return aasdk.Call{To: nft.ContractAddress, Data: data}, nil
	}
	to, err := parseAddress("target", c.String("to"))
	if err != nil {
		return aasdk.Call{}, err
	}
	data, err := hexutil.Decode(c.String("data"))
	if err != nil {
		return aasdk.Call{}, fmt.Errorf("invalid call data: %w", err)
	}
	value, ok := new(big.Int).SetString(c.String("value"), 10)
	if !ok || value.Sign() < 0 {
		return aasdk.Call{}, fmt.Errorf("invalid value: %q", c.String("value"))
	}
	return aasdk.Call{To: to, Value: value, Data: data}, nil
}

func sessionRevokeAction(c *cli.Context) error {
	if (c.String("id") == "") == (c.String("session-key") == "") {
		return errors.New("exactly one of --id or --session-key is required")
	}
	client, l, err := newClient(c)
	if err != nil {
		return err
	}
	defer client.Close()

	approvals, err := openStore(c, l)
	if err != nil {
		return err
	}
	defer approvals.Close()

	var records []*store.Record
	if c.String("id") != "" {
		id, err := uuid.Parse(c.String("id"))
		if err != nil {
			return fmt.Errorf("invalid record id: %w", err)
		}
		record, err := approvals.Load(id)
		if err != nil {
			return err
		}
		records = append(records, record)
	} else {
		sessionKey, err := parseAddress("session key", c.String("session-key"))
		if err != nil {
			return err
		}
		if records, err = approvals.ListBySessionKey(sessionKey); err != nil {
			return err
		}
	}

	revoked := 0
	for _, record := range records {
		if record.Revoked() {
			continue
		}
		approval, err := record.Decode()
		if err != nil {
			return err
		}
		account, err := ownerAccount(c, client, approval.Index)
		if err != nil {
			return err
		}
		hash, err := client.RevokeApproval(c.Context, account, approval)
		if err != nil {
			return fmt.Errorf("failed to revoke %s: %w", record.Id, err)
		}
		receipt, err := client.WaitForUserOperation(c.Context, hash)
		if err != nil {
			return err
		}
		if !receipt.Success {
			return fmt.Errorf("revocation of %s reverted: %s", record.Id, receipt.Reason)
		}
		if err := approvals.MarkRevoked(record.Id, time.Now()); err != nil {
			return err
		}
		l.Info("session key revoked",
			zap.String("id", record.Id.String()),
			zap.String("sessionKey", record.SessionKey.Hex()),
			zap.String("hash", hash.Hex()),
		)
		revoked++
	}
	if revoked == 0 {
		return errors.New("no active approval matched")
	}
	fmt.Fprintf(c.App.Writer, "revoked %d approval(s)\n", revoked)
	return nil
}

func sessionListAction(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	approvals, err := openStore(c, l)
	if err != nil {
		return err
	}
	defer approvals.Close()

	records, err := approvals.List()
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "%-36s  %-42s  %-42s  %-20s  %-20s  %s\n", "ID", "ACCOUNT", "SESSION KEY", "CREATED", "REVOKED", "LABEL")
	for _, r := range records {
		fmt.Fprintf(w, "%-36s  %-42s  %-42s  %-20s  %-20s  %s\n",
			r.Id, r.Account.Hex(), r.SessionKey.Hex(), r.CreatedAt.Format(time.RFC3339), formatTime(r.RevokedAt),
			strings.TrimSpace(r.Label))
	}
	return nil
}
