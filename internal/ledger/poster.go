package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stakevault/internal/domain"
	"stakevault/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"go.uber.org/zap"
)

var ErrNonPositiveAmount error = errors.New("ledger amount must be positive")
var ErrAlreadyPosted error = errors.New("one-shot ledger entry already posted")

// Repository is the slice of the store the poster needs.
type Repository interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
	InsertLedgerEntry(ctx context.Context, entry *repository.LedgerEntry) error
	ApplyBalanceDelta(ctx context.Context, userID, assetID, chainID string, delta repository.BalanceDelta) (bool, error)
}

// Posting describes one monetary movement to record.
type Posting struct {
	UserID        string
	AssetID       string
	ChainID       string
	EntryType     string
	Amount        decimal.Decimal
	ReferenceType string
	ReferenceID   string
	Direction     string // only consulted for ADJUSTMENT
	Metadata      map[string]any
}

// Poster writes a journal entry and its projection delta in one transaction.
type Poster struct {
	logs *zap.SugaredLogger
	repo Repository
	now  func() time.Time
}

func NewPoster(logger *zap.SugaredLogger, repo Repository, now func() time.Time) *Poster {
	return &Poster{
		logs: logger,
		repo: repo,
		now:  now,
	}
}

// Post records the movement. A replayed one-shot posting returns
// ErrAlreadyPosted without touching the projection; a projection guard
// violation (e.g. insufficient available) surfaces as a domain error.
func (p *Poster) Post(ctx context.Context, posting Posting) (*repository.LedgerEntry, error) {
	if !posting.Amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	direction := Direction(posting.EntryType)
	if posting.EntryType == EntryAdjustment && posting.Direction != "" {
		direction = posting.Direction
	}

	var metadata datatypes.JSON
	if posting.Metadata != nil {
		raw, err := json.Marshal(posting.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = raw
	}

	entry := &repository.LedgerEntry{
		ID:            uuid.NewString(),
		UserID:        &posting.UserID,
		AssetID:       posting.AssetID,
		ChainID:       posting.ChainID,
		EntryType:     posting.EntryType,
		Direction:     direction,
		Amount:        posting.Amount,
		ReferenceType: posting.ReferenceType,
		ReferenceID:   posting.ReferenceID,
		DedupKey:      DedupKey(posting.EntryType, posting.ReferenceType, posting.ReferenceID),
		Metadata:      metadata,
		CreatedAt:     p.now(),
	}

	delta, err := Apply(repository.BalanceDelta{}, *entry)
	if err != nil {
		return nil, fmt.Errorf("compute projection delta: %w", err)
	}

	err = p.repo.RunInTx(ctx, func(txCtx context.Context) error {
		if err := p.repo.InsertLedgerEntry(txCtx, entry); err != nil {
			if errors.Is(err, repository.ErrDuplicateLedgerEntry) {
				return ErrAlreadyPosted
			}
			return err
		}

		ok, err := p.repo.ApplyBalanceDelta(txCtx, posting.UserID, posting.AssetID, posting.ChainID, delta)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NewError(domain.CodeInsufficientBalance, "balance would go negative")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logs.Infow("ledger entry posted",
		"entry_type", posting.EntryType,
		"user_id", posting.UserID,
		"asset_id", posting.AssetID,
		"amount", posting.Amount.String(),
		"reference", fmt.Sprintf("%s/%s", posting.ReferenceType, posting.ReferenceID))

	return entry, nil
}
