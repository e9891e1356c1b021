package aasdk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/kernel"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/permission"
)

const approvalVersion = 1

// Approval is the owner's signed grant of a permission to a session key.
// It is handed to the agent as a portable string and installs the
// permission on first use.
type Approval struct {
	Version         int            `json:"version"`
	ChainId         uint64         `json:"chainId"`
	EntryPoint      common.Address `json:"entryPoint"`
	Account         common.Address `json:"account"`
	Owner           common.Address `json:"owner"`
	Index           uint64         `json:"index"`
	EnableNonce     uint32         `json:"enableNonce"`
	ValidatorData   hexutil.Bytes  `json:"validatorData"`
	SelectorData    hexutil.Bytes  `json:"selectorData"`
	EnableSignature hexutil.Bytes  `json:"enableSignature"`
}

// PermissionId returns the id of the approved permission.
func (a *Approval) PermissionId() [4]byte {
	var pid [4]byte
	copy(pid[:], crypto.Keccak256(a.ValidatorData)[:4])
	return pid
}

func (a *Approval) ValidationId() kernel.ValidationId {
	return kernel.PermissionValidationId(a.PermissionId())
}

// SessionKey returns the session key address the approval was issued to.
func (a *Approval) SessionKey(addrs kernel.Addresses) (common.Address, error) {
	perm, err := permission.DecodePermission(a.ValidatorData, addrs)
	if err != nil {
		return common.Address{}, err
	}
	return perm.Signer, nil
}

func (a *Approval) enable() kernel.Enable {
	return kernel.Enable{
		ValidationId:  a.ValidationId(),
		Nonce:         a.EnableNonce,
		Hook:          kernel.OneAddress,
		ValidatorData: a.ValidatorData,
		SelectorData:  a.SelectorData,
	}
}

// SerializeApproval encodes the approval as base64 JSON.
func SerializeApproval(a *Approval) (string, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("error marshalling approval: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DeserializeApproval parses a string produced by SerializeApproval. It does
// not verify the signature.
func DeserializeApproval(serialized string) (*Approval, error) {
	raw, err := base64.StdEncoding.DecodeString(serialized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidApproval, err)
	}
	var a Approval
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidApproval, err)
	}
	if a.Version != approvalVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidApproval, a.Version)
	}
	return &a, nil
}

// ApprovePermission has the owner of a root account sign the installation of
// a permission for sessionKey limited by policies.
func (c *Client) ApprovePermission(ctx context.Context, owner *KernelAccount, sessionKey common.Address, policies ...permission.Policy) (*Approval, error) {
	if owner.IsSession() {
		return nil, fmt.Errorf("permissions must be approved by the root owner")
	}
	perm := c.newPermission(sessionKey, policies...)
	validatorData, err := perm.ValidatorData()
	if err != nil {
		return nil, err
	}
	nonce, err := owner.CurrentNonce(ctx)
	if err != nil {
		return nil, err
	}

	approval := &Approval{
		Version:       approvalVersion,
		ChainId:       c.chainId.Uint64(),
		EntryPoint:    c.config.Entrypoint,
		Account:       owner.Address(),
		Owner:         owner.Owner(),
		Index:         owner.Index(),
		EnableNonce:   nonce,
		ValidatorData: validatorData,
		SelectorData:  kernel.DefaultSelectorData(),
	}
	digest, err := approval.enable().Digest(approval.Account, c.chainId)
	if err != nil {
		return nil, err
	}
	if approval.EnableSignature, err = owner.signer.SignHash(digest); err != nil {
		return nil, fmt.Errorf("error signing enable data: %w", err)
	}

	pid := approval.PermissionId()
	c.logger.Sugar().Infow("permission approved",
		"account", approval.Account.Hex(),
		"sessionKey", sessionKey.Hex(),
		"permissionId", hexutil.Encode(pid[:]),
		"policies", len(policies),
	)
	return approval, nil
}

// DeserializePermissionAccount rebuilds the restricted account an approval
// grants to sessionSigner. The approval is rejected when it was not signed by
// the account owner, was issued for another chain, account or session key,
// or carries policies this SDK does not know.
func (c *Client) DeserializePermissionAccount(ctx context.Context, serialized string, sessionSigner Signer) (*KernelAccount, error) {
	approval, err := DeserializeApproval(serialized)
	if err != nil {
		return nil, err
	}
	if approval.ChainId != c.chainId.Uint64() {
		return nil, fmt.Errorf("%w: issued for chain %d", ErrInvalidApproval, approval.ChainId)
	}
	if approval.EntryPoint != c.config.Entrypoint {
		return nil, fmt.Errorf("%w: issued for entrypoint %s", ErrInvalidApproval, approval.EntryPoint.Hex())
	}
	if !kernel.GrantsExecute(approval.SelectorData) {
		return nil, fmt.Errorf("%w: selector data does not grant execute", ErrInvalidApproval)
	}

	perm, err := permission.DecodePermission(approval.ValidatorData, c.config.Kernel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidApproval, err)
	}
	if perm.Signer != sessionSigner.Address() {
		return nil, fmt.Errorf("%w: issued to %s, not %s", ErrInvalidApproval, perm.Signer.Hex(), sessionSigner.Address().Hex())
	}

	digest, err := approval.enable().Digest(approval.Account, c.chainId)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidApproval, err)
	}
	signer, err := RecoverSigner(digest, approval.EnableSignature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidApproval, err)
	}
	if signer != approval.Owner {
		return nil, fmt.Errorf("%w: enable signature does not match owner", ErrInvalidApproval)
	}

	initData, address, err := c.resolveAccount(ctx, approval.Owner, approval.Index)
	if err != nil {
		return nil, err
	}
	if address != approval.Account {
		return nil, fmt.Errorf("%w: account %s is not owned by %s", ErrInvalidApproval, approval.Account.Hex(), approval.Owner.Hex())
	}

	return &KernelAccount{
		client:     c,
		address:    address,
		owner:      approval.Owner,
		index:      approval.Index,
		initData:   initData,
		signer:     sessionSigner,
		permission: perm,
		approval:   approval,
	}, nil
}

// RevokePermission uninstalls the permission of sessionKey with policies.
// Permissions of other session keys stay installed. Approvals that were
// issued but never used are retired as well, since uninstalling advances
// the account nonce their enable signatures are bound to.
func (c *Client) RevokePermission(ctx context.Context, owner *KernelAccount, sessionKey common.Address, policies ...permission.Policy) (common.Hash, error) {
	vId, err := c.newPermission(sessionKey, policies...).ValidationId()
	if err != nil {
		return common.Hash{}, err
	}
	return c.revoke(ctx, owner, vId)
}

// RevokeApproval revokes the permission granted by approval.
func (c *Client) RevokeApproval(ctx context.Context, owner *KernelAccount, approval *Approval) (common.Hash, error) {
	if approval.Account != owner.Address() {
		return common.Hash{}, fmt.Errorf("%w: approval is for account %s", ErrInvalidApproval, approval.Account.Hex())
	}
	return c.revoke(ctx, owner, approval.ValidationId())
}

func (c *Client) revoke(ctx context.Context, owner *KernelAccount, vId kernel.ValidationId) (common.Hash, error) {
	if owner.IsSession() {
		return common.Hash{}, fmt.Errorf("permissions must be revoked by the root owner")
	}
	uninstall, err := kernel.UninstallValidationData(vId, nil, nil)
	if err != nil {
		return common.Hash{}, err
	}
	c.logger.Sugar().Infow("revoking permission",
		"account", owner.Address().Hex(),
		"validationId", vId.Hex(),
	)
	return c.SendUserOperation(ctx, owner, Call{To: owner.Address(), Data: uninstall})
}

// InvalidateApprovals disables every permission installed on the account of
// owner and every approval issued for it, by raising the nonce validations
// must be installed at.
func (c *Client) InvalidateApprovals(ctx context.Context, owner *KernelAccount) (common.Hash, error) {
	if owner.IsSession() {
		return common.Hash{}, fmt.Errorf("permissions must be revoked by the root owner")
	}
	current, err := owner.CurrentNonce(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	invalidate, err := kernel.InvalidateNonceData(current + 1)
	if err != nil {
		return common.Hash{}, err
	}
	c.logger.Sugar().Infow("invalidating approvals",
		"account", owner.Address().Hex(),
		"nonce", current+1,
	)
	return c.SendUserOperation(ctx, owner, Call{To: owner.Address(), Data: invalidate})
}

func (c *Client) newPermission(sessionKey common.Address, policies ...permission.Policy) *permission.Permission {
	return &permission.Permission{
		SignerModule: c.config.Kernel.ECDSASigner,
		Signer:       sessionKey,
		Policies:     policies,
	}
}
