// Package store persists the approvals an owner has issued, so they can be
// listed and revoked later by session key.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	aasdk "github.com/lifenetwork-ai/aa-kernel-sdk-go"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/kernel"
)

var (
	ErrNotFound = errors.New("approval record not found")
	ErrClosed   = errors.New("approval store is closed")
)

// Record is an issued approval.
type Record struct {
	Id         uuid.UUID      `json:"id"`
	Label      string         `json:"label,omitempty"`
	ChainId    uint64         `json:"chainId"`
	Account    common.Address `json:"account"`
	SessionKey common.Address `json:"sessionKey"`
	// Approval is the serialized approval handed to the agent.
	Approval  string     `json:"approval"`
	CreatedAt time.Time  `json:"createdAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// NewRecord wraps approval into a record with a fresh id.
func NewRecord(approval *aasdk.Approval, addrs kernel.Addresses, label string) (*Record, error) {
	sessionKey, err := approval.SessionKey(addrs)
	if err != nil {
		return nil, fmt.Errorf("failed to read session key: %w", err)
	}
	serialized, err := aasdk.SerializeApproval(approval)
	if err != nil {
		return nil, err
	}
	return &Record{
		Id:         uuid.New(),
		Label:      label,
		ChainId:    approval.ChainId,
		Account:    approval.Account,
		SessionKey: sessionKey,
		Approval:   serialized,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (r *Record) Revoked() bool {
	return r.RevokedAt != nil
}

// Decode parses the stored approval.
func (r *Record) Decode() (*aasdk.Approval, error) {
	return aasdk.DeserializeApproval(r.Approval)
}

// Copy returns a deep copy of the record.
func (r *Record) Copy() *Record {
	cp := *r
	if r.RevokedAt != nil {
		at := *r.RevokedAt
		cp.RevokedAt = &at
	}
	return &cp
}

// ApprovalStore keeps approval records. Implementations are safe for
// concurrent use.
type ApprovalStore interface {
	// Save inserts or overwrites the record with the same id.
	Save(record *Record) error

	// Load returns ErrNotFound when no record has the id.
	Load(id uuid.UUID) (*Record, error)

	// ListBySessionKey returns the records issued to sessionKey, oldest first.
	ListBySessionKey(sessionKey common.Address) ([]*Record, error)

	// List returns every record, oldest first.
	List() ([]*Record, error)

	// MarkRevoked stamps the record as revoked at the given time.
	MarkRevoked(id uuid.UUID, at time.Time) error

	// Delete is idempotent.
	Delete(id uuid.UUID) error

	// Close is idempotent. Every other call fails with ErrClosed afterwards.
	Close() error

	HealthCheck() error
}

// MarshalRecord serializes a record to JSON.
func MarshalRecord(r *Record) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("cannot marshal nil Record")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Record to JSON: %w", err)
	}
	return data, nil
}

func UnmarshalRecord(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to Record: %w", err)
	}
	return &r, nil
}

// Validate rejects records that cannot be indexed.
func Validate(r *Record) error {
	if r == nil {
		return fmt.Errorf("cannot save nil Record")
	}
	if r.Id == uuid.Nil {
		return fmt.Errorf("record has no id")
	}
	if r.SessionKey == (common.Address{}) {
		return fmt.Errorf("record %s has no session key", r.Id)
	}
	return nil
}
