package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	In  TxType = "IN"
	Out TxType = "OUT"
)

const (
	Food          Category = "Food"
	Transport     Category = "Transport"
	Shopping      Category = "Shopping"
	Bills         Category = "Bills"
	Entertainment Category = "Entertainment"
	Health        Category = "Health"
	Other         Category = "Other"
)

// Categories is the fixed category set, in display order. The first member is
// the default for drafts that do not pick one.
var Categories = []Category{Food, Transport, Shopping, Bills, Entertainment, Health, Other}

type (
	TxType   string
	Category string

	// Transaction is the only persisted entity of the ledger.
	Transaction struct {
		ID               string          `json:"id"`
		OwnerID          string          `json:"ownerId"`
		OwnerEmail       string          `json:"ownerEmail,omitempty"`
		OwnerDisplayName string          `json:"ownerDisplayName,omitempty"`
		Amount           decimal.Decimal `json:"amount"`
		Type             TxType          `json:"type"`
		Category         Category        `json:"category"`
		Remark           string          `json:"remark"`
		CreatedAt        time.Time       `json:"createdAt"`
	}

	// Session is the authenticated identity. It is owned by the identity
	// provider; the ledger core only reads it.
	Session struct {
		UserID      string `json:"uid"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName,omitempty"`
	}

	// Draft is the editable form state of a single transaction.
	Draft struct {
		Amount   string   `json:"amount"`
		Remark   string   `json:"remark"`
		Type     TxType   `json:"type"`
		Category Category `json:"category"`
	}
)

var (
	ErrInvalidAmount   = errors.New("please enter a valid amount")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidCategory = errors.New("invalid category")
	ErrEmptyOwner      = errors.New("transaction has no owner")
)

// DefaultCategory returns the first member of the category set.
func DefaultCategory() Category {
	return Categories[0]
}

func (t TxType) Valid() bool {
	return t == In || t == Out
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseTxType accepts IN/OUT in any case. Empty input defaults to OUT.
func ParseTxType(s string) (TxType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Out, nil
	}
	t := TxType(s)
	if !t.Valid() {
		return "", ErrInvalidType
	}
	return t, nil
}

// ParseCategory matches a category name case-insensitively. Empty input
// resolves to DefaultCategory.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultCategory(), nil
	}
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", ErrInvalidCategory
}

// Name is what other participants see for this identity: the display name,
// falling back to the email.
func (s Session) Name() string {
	if strings.TrimSpace(s.DisplayName) != "" {
		return s.DisplayName
	}
	return s.Email
}

// NewDraft returns an empty form with the default type and category.
func NewDraft() Draft {
	return Draft{Type: Out, Category: DefaultCategory()}
}

// DraftFrom fills a form from an existing record, for editing.
func DraftFrom(t Transaction) Draft {
	cat := t.Category
	if cat == "" {
		cat = DefaultCategory()
	}
	return Draft{
		Amount:   t.Amount.String(),
		Remark:   t.Remark,
		Type:     t.Type,
		Category: cat,
	}
}

// Mutable is the validated, persistable part of a draft.
type Mutable struct {
	Amount   decimal.Decimal
	Remark   string
	Type     TxType
	Category Category
}

// Validate checks the draft and returns the values to persist. The amount must
// parse as a non-negative number and the remark is trimmed. Type and category
// match case-insensitively and fall back to their defaults when unset.
func (d Draft) Validate() (Mutable, error) {
	amount, err := ParseAmount(d.Amount)
	if err != nil {
		return Mutable{}, err
	}
	typ, err := ParseTxType(string(d.Type))
	if err != nil {
		return Mutable{}, err
	}
	cat, err := ParseCategory(string(d.Category))
	if err != nil {
		return Mutable{}, err
	}
	return Mutable{
		Amount:   amount,
		Remark:   strings.TrimSpace(d.Remark),
		Type:     typ,
		Category: cat,
	}, nil
}

// DisplayName resolves who created the record for reports: the display name
// snapshot, then the email, then "Unknown".
func (t Transaction) DisplayName() string {
	if strings.TrimSpace(t.OwnerDisplayName) != "" {
		return t.OwnerDisplayName
	}
	if strings.TrimSpace(t.OwnerEmail) != "" {
		return t.OwnerEmail
	}
	return "Unknown"
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if !t.Category.Valid() {
		return ErrInvalidCategory
	}
	return nil
}
