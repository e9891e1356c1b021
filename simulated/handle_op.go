package simulated

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	aasdk "github.com/lifenetwork-ai/aa-kernel-sdk-go"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/kernel"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/permission"
)

const (
	// maxNonceIncrement bounds how far invalidateNonce may jump.
	maxNonceIncrement = 10

	executionGas = 50000
)

type installation struct {
	vId        kernel.ValidationId
	validation *validation
}

// validated carries the state changes of an operation that passed validation.
type validated struct {
	account *kernelAccount
	deploy  bool
	install *installation
	key     *big.Int
}

func (b *Backend) sendUserOperation(op *aasdk.UserOperation, entryPoint common.Address) (common.Hash, error) {
	if entryPoint != b.addrs.EntryPoint {
		return common.Hash{}, reject(codeInvalidParams, "unsupported entrypoint %s", entryPoint.Hex())
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	hash, err := aasdk.UserOpHash(op, entryPoint, b.chainId)
	if err != nil {
		return common.Hash{}, reject(codeInvalidParams, "%v", err)
	}
	if _, ok := b.receipts[hash]; ok {
		return common.Hash{}, reject(codeRejected, "AA25 user operation %s already included", hash.Hex())
	}
	if _, ok := b.pending[hash]; ok {
		return common.Hash{}, reject(codeRejected, "AA25 user operation %s already pending", hash.Hex())
	}

	v, err := b.validate(op, hash)
	if err != nil {
		b.logger.Info("user operation rejected", zap.String("sender", op.Sender.Hex()), zap.Error(err))
		return common.Hash{}, err
	}
	if b.stall.Load() {
		b.pending[hash] = struct{}{}
		b.logger.Info("user operation stalled", zap.String("hash", hash.Hex()))
		return hash, nil
	}
	b.include(op, hash, v)
	return hash, nil
}

func (b *Backend) validate(op *aasdk.UserOperation, hash common.Hash) (*validated, error) {
	v := &validated{}
	acct, deployed := b.accounts[op.Sender]
	switch {
	case op.Factory != (common.Address{}) && deployed:
		return nil, reject(codeRejected, "AA10 sender already constructed")
	case op.Factory != (common.Address{}):
		constructed, err := b.construct(op)
		if err != nil {
			return nil, err
		}
		acct, v.deploy = constructed, true
	case !deployed:
		return nil, reject(codeRejected, "AA20 account not deployed")
	}
	v.account = acct

	key, seq := kernel.DecodeNonce(op.Nonce)
	v.key = key.Big()
	if want := b.nonceOf(op.Sender, v.key); seq != want {
		return nil, reject(codeRejected, "AA25 invalid account nonce: have %d, want %d", seq, want)
	}

	var err error
	switch key.Type {
	case kernel.ValidationTypeRoot:
		err = b.validateRoot(acct, key, op, hash)
	case kernel.ValidationTypeValidator:
		if kernel.ValidationIdFromNonceKey(key) != acct.rootValidator {
			return nil, reject(codeRejected, "AA23 reverted: validator %s not installed", kernel.ValidationIdFromNonceKey(key).Hex())
		}
		err = b.validateRoot(acct, key, op, hash)
	case kernel.ValidationTypePermission:
		v.install, err = b.validatePermission(acct, key, op, hash)
	default:
		err = reject(codeRejected, "AA23 reverted: unknown validation type %#x", byte(key.Type))
	}
	if err != nil {
		return nil, err
	}

	if op.Paymaster != (common.Address{}) {
		if op.Paymaster != b.paymaster.Address() {
			return nil, reject(codePaymasterRejected, "AA30 paymaster not deployed: %s", op.Paymaster.Hex())
		}
		if err := aasdk.VerifyPaymasterSignature(op, b.chainId, b.pmSigner); err != nil {
			return nil, reject(codeSignature, "AA34 signature error: %v", err)
		}
		return v, nil
	}
	available := new(big.Int).Add(b.depositOf(op.Sender), b.balanceOf(op.Sender))
	if available.Cmp(requiredPrefund(op)) < 0 {
		return nil, reject(codeRejected, "AA21 didn't pay prefund")
	}
	return v, nil
}

// construct runs the meta factory call of op without storing the account.
func (b *Backend) construct(op *aasdk.UserOperation) (*kernelAccount, error) {
	if op.Factory != b.addrs.MetaFactory {
		return nil, reject(codeRejected, "AA13 initCode failed: unknown factory %s", op.Factory.Hex())
	}
	factory, initData, salt, err := kernel.DecodeFactoryData(op.FactoryData)
	if err != nil {
		return nil, reject(codeRejected, "AA13 initCode failed: %v", err)
	}
	if factory != b.addrs.Factory {
		return nil, reject(codeRejected, "AA13 initCode failed: factory %s not allowed", factory.Hex())
	}
	root, validatorData, err := kernel.DecodeInitializeData(initData)
	if err != nil {
		return nil, reject(codeRejected, "AA13 initCode failed: %v", err)
	}
	if root != kernel.ValidatorValidationId(b.addrs.ECDSAValidator) || len(validatorData) != common.AddressLength {
		return nil, reject(codeRejected, "AA13 initCode failed: unsupported root validator %s", root.Hex())
	}
	if addr := b.AccountAddress(initData, salt); addr != op.Sender {
		return nil, reject(codeRejected, "AA14 initCode must return sender: got %s", addr.Hex())
	}
	return &kernelAccount{
		owner:         common.BytesToAddress(validatorData),
		rootValidator: root,
		currentNonce:  1,
		validations:   make(map[kernel.ValidationId]*validation),
	}, nil
}

func (b *Backend) validateRoot(acct *kernelAccount, key kernel.NonceKey, op *aasdk.UserOperation, hash common.Hash) error {
	if key.Mode != kernel.ValidationModeDefault {
		return reject(codeRejected, "AA23 reverted: enable mode requires a permission")
	}
	signer, err := aasdk.RecoverMessageSigner(hash.Bytes(), op.Signature)
	if err != nil || signer != acct.owner {
		return reject(codeSignature, "AA24 signature error")
	}
	return nil
}

func (b *Backend) validatePermission(acct *kernelAccount, key kernel.NonceKey, op *aasdk.UserOperation, hash common.Hash) (*installation, error) {
	vId := kernel.ValidationIdFromNonceKey(key)
	var (
		perm      *permission.Permission
		install   *installation
		userOpSig []byte
	)
	switch key.Mode {
	case kernel.ValidationModeEnable:
		sig, err := kernel.DecodeEnableSignature(op.Signature)
		if err != nil {
			return nil, reject(codeRejected, "AA23 reverted: %v", err)
		}
		digest, err := sig.Enable(vId, acct.currentNonce).Digest(op.Sender, b.chainId)
		if err != nil {
			return nil, reject(codeRejected, "AA23 reverted: %v", err)
		}
		owner, err := aasdk.RecoverSigner(digest, sig.EnableSig)
		if err != nil || owner != acct.owner {
			return nil, reject(codeSignature, "AA24 signature error: enable data not signed by the root validator")
		}
		var pid [4]byte
		copy(pid[:], crypto.Keccak256(sig.ValidatorData)[:4])
		if kernel.PermissionValidationId(pid) != vId {
			return nil, reject(codeRejected, "AA23 reverted: permission id does not match validator data")
		}
		if !kernel.GrantsExecute(sig.SelectorData) {
			return nil, reject(codeRejected, "AA23 reverted: selector not granted")
		}
		if perm, err = permission.DecodePermission(sig.ValidatorData, b.addrs); err != nil {
			return nil, reject(codeRejected, "AA23 reverted: %v", err)
		}
		install = &installation{vId: vId, validation: &validation{
			nonce:      acct.currentNonce,
			hook:       sig.Hook,
			permission: perm,
		}}
		userOpSig = sig.UserOpSig
	case kernel.ValidationModeDefault:
		installed, ok := acct.validations[vId]
		if !ok {
			return nil, reject(codeRejected, "AA23 reverted: validation %s not installed", vId.Hex())
		}
		if installed.nonce < acct.validNonceFrom {
			return nil, reject(codeRejected, "AA23 reverted: validation %s revoked", vId.Hex())
		}
		perm = installed.permission
		userOpSig = op.Signature
	default:
		return nil, reject(codeRejected, "AA23 reverted: unknown validation mode %#x", byte(key.Mode))
	}

	if len(userOpSig) != 1+crypto.SignatureLength || userOpSig[0] != 0xff {
		return nil, reject(codeSignature, "AA24 signature error: malformed permission signature")
	}
	signer, err := aasdk.RecoverMessageSigner(hash.Bytes(), userOpSig[1:])
	if err != nil || signer != perm.Signer {
		return nil, reject(codeSignature, "AA24 signature error")
	}

	calls, err := kernel.DecodeExecute(op.CallData)
	if err != nil {
		return nil, reject(codeRejected, "AA23 reverted: %v", err)
	}
	if err := perm.Check(calls...); err != nil {
		return nil, reject(codeRejected, "AA23 reverted: %v", err)
	}
	return install, nil
}

// include commits a validated operation and executes it in a new block.
func (b *Backend) include(op *aasdk.UserOperation, hash common.Hash, v *validated) {
	if v.deploy {
		b.accounts[op.Sender] = v.account
	}
	if v.install != nil {
		v.account.validations[v.install.vId] = v.install.validation
	}
	if b.nonces[op.Sender] == nil {
		b.nonces[op.Sender] = make(map[string]uint64)
	}
	b.nonces[op.Sender][v.key.String()]++

	gasUsed := new(big.Int).Add(orZero(op.PreVerificationGas), big.NewInt(executionGas))
	gasPrice := orZero(op.MaxFeePerGas)
	cost := new(big.Int).Mul(gasUsed, gasPrice)
	if op.Paymaster == (common.Address{}) {
		b.charge(op.Sender, requiredPrefund(op), cost)
	}

	logs, execErr := b.execute(op.Sender, op.CallData)
	reason := ""
	if execErr != nil {
		reason = execErr.Error()
	}

	executor := b.executors.Next()
	var from common.Address
	if executor != nil {
		from = executor.Address()
	}
	number := new(big.Int).SetUint64(b.block)
	txHash := crypto.Keccak256Hash(hash.Bytes(), number.Bytes())
	blockHash := crypto.Keccak256Hash([]byte("block"), number.Bytes())

	event := b.entryPointABI.Events["UserOperationEvent"]
	data, err := event.Inputs.NonIndexed().Pack(orZero(op.Nonce), execErr == nil, cost, gasUsed)
	if err != nil {
		b.logger.Error("error packing UserOperationEvent", zap.Error(err))
	}
	eventLog := &types.Log{
		Address: b.addrs.EntryPoint,
		Topics: []common.Hash{
			event.ID,
			hash,
			common.BytesToHash(op.Sender.Bytes()),
			common.BytesToHash(op.Paymaster.Bytes()),
		},
		Data: data,
	}
	all := append(append([]*types.Log{}, logs...), eventLog)
	var bloom types.Bloom
	for i, l := range all {
		l.BlockNumber = b.block
		l.BlockHash = blockHash
		l.TxHash = txHash
		l.Index = uint(i)
		bloom.Add(l.Address.Bytes())
		for _, topic := range l.Topics {
			bloom.Add(topic.Bytes())
		}
	}

	b.receipts[hash] = &aasdk.UserOpReceipt{
		UserOpHash:    hash,
		EntryPoint:    b.addrs.EntryPoint,
		Sender:        op.Sender,
		Paymaster:     op.Paymaster,
		Nonce:         hexutil.EncodeBig(orZero(op.Nonce)),
		Success:       execErr == nil,
		Reason:        reason,
		ActualGasCost: hexutil.EncodeBig(cost),
		ActualGasUsed: hexutil.EncodeBig(gasUsed),
		Logs:          logs,
		Receipt: &aasdk.TxReceipt{
			BlockHash:         blockHash,
			BlockNumber:       hexutil.EncodeUint64(b.block),
			From:              from,
			CumulativeGasUsed: hexutil.EncodeBig(gasUsed),
			GasUsed:           hexutil.EncodeBig(gasUsed),
			Logs:              all,
			LogsBloom:         bloom,
			TransactionHash:   txHash,
			TransactionIndex:  "0x0",
			EffectiveGasPrice: hexutil.EncodeBig(gasPrice),
		},
	}
	b.block++

	b.logger.Info("user operation included",
		zap.String("hash", hash.Hex()),
		zap.String("sender", op.Sender.Hex()),
		zap.Bool("success", execErr == nil),
		zap.Uint64("block", number.Uint64()),
	)
}

// charge moves the missing prefund from the account balance to its
// EntryPoint deposit and pays cost from the deposit.
func (b *Backend) charge(sender common.Address, prefund, cost *big.Int) {
	deposit := b.depositOf(sender)
	if missing := new(big.Int).Sub(prefund, deposit); missing.Sign() > 0 {
		b.balances[sender] = new(big.Int).Sub(b.balanceOf(sender), missing)
		deposit = new(big.Int).Add(deposit, missing)
	}
	if cost.Cmp(deposit) > 0 {
		cost = deposit
	}
	b.deposits[sender] = new(big.Int).Sub(deposit, cost)
}

// execute runs the execute call data of an account. A failing call reverts
// every call of the operation.
func (b *Backend) execute(sender common.Address, callData []byte) ([]*types.Log, error) {
	if len(callData) == 0 {
		return nil, nil
	}
	calls, err := kernel.DecodeExecute(callData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReverted, err)
	}
	var (
		logs []*types.Log
		undo []func()
	)
	for i, call := range calls {
		if err := b.executeCall(sender, call, &logs, &undo); err != nil {
			for j := len(undo) - 1; j >= 0; j-- {
				undo[j]()
			}
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
	}
	return logs, nil
}

func (b *Backend) executeCall(sender common.Address, call kernel.Call, logs *[]*types.Log, undo *[]func()) error {
	value := call.ValueOrZero()
	if call.CallType == kernel.CallTypeDelegateCall {
		value = new(big.Int)
	}
	if value.Sign() > 0 {
		if b.balanceOf(sender).Cmp(value) < 0 {
			return fmt.Errorf("%w: insufficient balance", ErrReverted)
		}
		b.transfer(sender, call.To, value, undo)
	}
	if call.To == sender {
		return b.selfCall(sender, call.Data, undo)
	}
	contract, ok := b.contracts[call.To]
	if !ok {
		return nil
	}
	env := &CallEnv{From: sender, Value: value, address: call.To, logs: logs, undo: undo}
	if call.CallType == kernel.CallTypeDelegateCall {
		env.address = sender
	}
	_, err := contract.Call(env, call.Data)
	return err
}

func (b *Backend) transfer(from, to common.Address, value *big.Int, undo *[]func()) {
	prevFrom, prevTo := b.balanceOf(from), b.balanceOf(to)
	b.balances[from] = new(big.Int).Sub(prevFrom, value)
	b.balances[to] = new(big.Int).Add(b.balanceOf(to), value)
	*undo = append(*undo, func() {
		b.balances[from] = prevFrom
		b.balances[to] = prevTo
	})
}

// selfCall handles calls of an account to its own management functions.
func (b *Backend) selfCall(sender common.Address, data []byte, undo *[]func()) error {
	acct := b.accounts[sender]
	if len(data) < 4 {
		return nil
	}
	method, err := b.accountABI.MethodById(data[:4])
	if err != nil {
		return fmt.Errorf("%w: unknown selector %x", ErrReverted, data[:4])
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReverted, err)
	}

	switch method.Name {
	case "uninstallValidation":
		vId := kernel.ValidationId(args[0].([21]byte))
		if vId == acct.rootValidator {
			return fmt.Errorf("%w: RootValidatorCannotBeRemoved", ErrReverted)
		}
		prevCurrent := acct.currentNonce
		prev, ok := acct.validations[vId]
		delete(acct.validations, vId)
		// Enable signatures are bound to currentNonce, so moving it on
		// retires every approval issued so far without touching
		// validNonceFrom and the other installed validations.
		acct.currentNonce++
		*undo = append(*undo, func() {
			acct.currentNonce = prevCurrent
			if ok {
				acct.validations[vId] = prev
			}
		})
		return nil
	case "invalidateNonce":
		nonce := args[0].(uint32)
		if acct.currentNonce+maxNonceIncrement < nonce || nonce <= acct.validNonceFrom {
			return fmt.Errorf("%w: NonceInvalidationError", ErrReverted)
		}
		prevCurrent, prevValid := acct.currentNonce, acct.validNonceFrom
		acct.validNonceFrom = nonce
		if acct.currentNonce < nonce {
			acct.currentNonce = nonce
		}
		*undo = append(*undo, func() {
			acct.currentNonce, acct.validNonceFrom = prevCurrent, prevValid
		})
		return nil
	}
	return fmt.Errorf("%w: %s not supported", ErrReverted, method.Name)
}

// requiredPrefund is the most an operation may cost without a paymaster.
func requiredPrefund(op *aasdk.UserOperation) *big.Int {
	gas := new(big.Int).Add(orZero(op.VerificationGasLimit), orZero(op.CallGasLimit))
	gas.Add(gas, orZero(op.PreVerificationGas))
	gas.Add(gas, orZero(op.PaymasterVerificationGasLimit))
	gas.Add(gas, orZero(op.PaymasterPostOpGasLimit))
	return gas.Mul(gas, orZero(op.MaxFeePerGas))
}

func orZero(b *big.Int) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return b
}
