package aasdk

import (
	"errors"
	"fmt"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/permission"
)

var (
	ErrMissingConfig       = errors.New("missing configuration")
	ErrInvalidPrivateKey   = errors.New("invalid private key")
	ErrInvalidApproval     = errors.New("invalid permission approval")
	ErrSponsorshipRejected = errors.New("paymaster rejected sponsorship")
	ErrReceiptTimeout      = errors.New("timed out waiting for user operation receipt")
	ErrSignerCannotSign    = errors.New("signer holds no private key")

	// ErrPolicyViolation is returned when a session account is asked to run
	// calls its permission does not cover.
	ErrPolicyViolation = permission.ErrPolicyViolation
)

// RPCError is an error object returned by a JSON-RPC service.
type RPCError struct {
	Method  string
	Code    int
	Message string
	Data    any
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: code: %d, message: %s", e.Method, e.Code, e.Message)
}

// ErrorCode returns the JSON-RPC error code.
func (e *RPCError) ErrorCode() int {
	return e.Code
}
