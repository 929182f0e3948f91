package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// TransactionType is an explicit enum. Rendering and accounting key off the
// type, never off the description text.
type TransactionType string

const (
	TypeEarn     TransactionType = "earn"
	TypeSpend    TransactionType = "spend"
	TypePurchase TransactionType = "purchase"
	TypeBonus    TransactionType = "bonus"
	TypeRefund   TransactionType = "refund"
)

// ValidCreditType reports whether the type adds credits to the balance.
func ValidCreditType(t TransactionType) bool {
	switch t {
	case TypeEarn, TypePurchase, TypeBonus, TypeRefund:
		return true
	default:
		return false
	}
}

// Transaction is an append-only, hash-chained ledger entry. Amount is always
// positive; SignedAmount carries the direction.
//
// ReferenceID is a pointer so entries without a reference store NULL and stay
// out of the unique index; (user_id, reference_id) is the idempotency key the
// schema itself enforces.
type Transaction struct {
	ID           string          `gorm:"column:id;primaryKey" json:"id"`
	UserID       string          `gorm:"column:user_id;index;not null;uniqueIndex:idx_user_reference" json:"user_id"`
	Type         TransactionType `gorm:"column:type;not null" json:"type"`
	Amount       int64           `gorm:"column:amount;not null" json:"amount"`
	Code         string          `gorm:"column:code" json:"code"`
	ReferenceID  *string         `gorm:"column:reference_id;uniqueIndex:idx_user_reference" json:"reference_id,omitempty"`
	Description  string          `gorm:"column:description" json:"description"`
	PreviousHash string          `gorm:"column:previous_hash" json:"previous_hash"`
	Hash         string          `gorm:"column:hash" json:"hash"`
	Metadata     datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// SignedAmount is negative for spends and positive otherwise.
func (t *Transaction) SignedAmount() int64 {
	if t.Type == TypeSpend {
		return -t.Amount
	}
	return t.Amount
}

// Reference returns the reference id or "" when the entry has none.
func (t *Transaction) Reference() string {
	if t.ReferenceID == nil {
		return ""
	}
	return *t.ReferenceID
}

func (t *Transaction) HashFields() map[string]string {
	return map[string]string{
		"id":            t.ID,
		"user_id":       t.UserID,
		"type":          string(t.Type),
		"amount":        fmt.Sprintf("%d", t.Amount),
		"code":          t.Code,
		"reference_id":  t.Reference(),
		"description":   t.Description,
		"created_at":    t.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash": t.PreviousHash,
	}
}

func (t *Transaction) GenerateHash() string {
	fields := t.HashFields()
	var keys []string
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	joined := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(hash[:])
}

const genesisHash = "GENESIS"
