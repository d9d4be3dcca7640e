package withdrawal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"stakevault/internal/domain"
	"stakevault/internal/ledger"
	"stakevault/internal/repository"
	"stakevault/pkg/clock"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const whitelistCooldown = 24 * time.Hour

// FeePolicy: fee = max(minFee, amount * feeRate).
type FeePolicy struct {
	FeeRate decimal.Decimal
	MinFee  decimal.Decimal
}

// Service implements the admin-gated withdrawal workflow.
type Service struct {
	logs    *zap.SugaredLogger
	repo    Repository
	poster  LedgerPoster
	queue   PayoutEnqueuer
	notify  Notifier
	clock   clock.Clock
	fees    FeePolicy
	policy  FraudPolicy
}

func NewService(logger *zap.SugaredLogger, repo Repository, poster LedgerPoster, queue PayoutEnqueuer, notifier Notifier, clk clock.Clock, fees FeePolicy, policy FraudPolicy) *Service {
	return &Service{
		logs:   logger,
		repo:   repo,
		poster: poster,
		queue:  queue,
		notify: notifier,
		clock:  clk,
		fees:   fees,
		policy: policy,
	}
}

// SubmitInput is the validated request body.
type SubmitInput struct {
	UserID             string
	AssetID            string
	ChainID            string
	Amount             decimal.Decimal
	DestinationAddress string
	UserNotes          string
	IdempotencyKey     string
}

// Submit reserves the amount and parks the request in PENDING_REVIEW. It
// never executes a payout. Replays of the same idempotency key return the
// existing request unchanged.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (repository.WithdrawalRequest, error) {
	if existing, found, err := s.repo.GetWithdrawalByIdempotencyKey(ctx, in.IdempotencyKey); err != nil {
		return repository.WithdrawalRequest{}, err
	} else if found {
		return existing, nil
	}

	asset, err := s.repo.GetAsset(ctx, in.AssetID)
	if err != nil {
		return repository.WithdrawalRequest{}, err
	}
	if !asset.IsActive {
		return repository.WithdrawalRequest{}, domain.NewError(domain.CodeAssetInactive, "asset is not active")
	}

	user, err := s.repo.GetUserByID(ctx, in.UserID)
	if err != nil {
		return repository.WithdrawalRequest{}, err
	}

	destination := strings.ToLower(in.DestinationAddress)

	fee := in.Amount.Mul(s.fees.FeeRate)
	if fee.LessThan(s.fees.MinFee) {
		fee = s.fees.MinFee
	}
	netAmount := in.Amount.Sub(fee)
	if !netAmount.IsPositive() {
		return repository.WithdrawalRequest{}, domain.NewError(domain.CodeAmountTooSmall,
			fmt.Sprintf("amount does not cover the %s fee", fee.String()))
	}

	indicators, score, err := s.ScoreWithdrawal(ctx, user, asset, in.ChainID, destination, in.Amount)
	if err != nil {
		return repository.WithdrawalRequest{}, err
	}
	indicatorsJSON, err := json.Marshal(indicators)
	if err != nil {
		return repository.WithdrawalRequest{}, fmt.Errorf("marshal fraud indicators: %w", err)
	}

	now := s.clock.Now()
	request := repository.WithdrawalRequest{
		ID:                 uuid.NewString(),
		UserID:             in.UserID,
		AssetID:            in.AssetID,
		ChainID:            in.ChainID,
		Amount:             in.Amount,
		Fee:                fee,
		NetAmount:          netAmount,
		DestinationAddress: destination,
		Status:             repository.WithdrawalPendingReview,
		UserNotes:          in.UserNotes,
		IdempotencyKey:     in.IdempotencyKey,
		FraudScore:         score,
		FraudIndicators:    indicatorsJSON,
		CreatedAt:          now,
	}

	err = s.repo.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.CreateWithdrawalRequest(txCtx, &request); err != nil {
			return err
		}

		// reserve: fails the transaction when available < amount
		_, err := s.poster.Post(txCtx, ledger.Posting{
			UserID:        in.UserID,
			AssetID:       in.AssetID,
			ChainID:       in.ChainID,
			EntryType:     ledger.EntryWithdrawalRequested,
			Amount:        in.Amount,
			ReferenceType: "WithdrawalRequest",
			ReferenceID:   request.ID,
		})
		if err != nil {
			return err
		}

		// first-time destinations get a 24h cooldown; an existing row is
		// never refreshed
		return s.repo.AddWhitelistEntry(txCtx, &repository.AddressWhitelist{
			ID:             uuid.NewString(),
			UserID:         in.UserID,
			ChainID:        in.ChainID,
			Address:        destination,
			CooldownEndsAt: now.Add(whitelistCooldown),
			CreatedAt:      now,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
			// lost the race against a concurrent submit with the same key
			existing, found, lookupErr := s.repo.GetWithdrawalByIdempotencyKey(ctx, in.IdempotencyKey)
			if lookupErr == nil && found {
				return existing, nil
			}
		}
		return repository.WithdrawalRequest{}, err
	}

	s.logs.Infow("withdrawal submitted",
		"request_id", request.ID,
		"user_id", in.UserID,
		"amount", in.Amount.String(),
		"fraud_score", score)

	return request, nil
}

func (s *Service) GetUserRequest(ctx context.Context, userID, requestID string) (repository.WithdrawalRequest, error) {
	request, err := s.repo.GetWithdrawalRequest(ctx, requestID)
	if err != nil {
		return repository.WithdrawalRequest{}, err
	}
	if request.UserID != userID {
		return repository.WithdrawalRequest{}, ErrNotOwner
	}
	return request, nil
}

var ErrNotOwner error = errors.New("request belongs to another user")

// GetRequest fetches a request without ownership checks; admin paths only.
func (s *Service) GetRequest(ctx context.Context, requestID string) (repository.WithdrawalRequest, error) {
	return s.repo.GetWithdrawalRequest(ctx, requestID)
}

func (s *Service) ListUserRequests(ctx context.Context, userID string) ([]repository.WithdrawalRequest, error) {
	return s.repo.ListUserWithdrawals(ctx, userID, 100)
}

func (s *Service) ListForReview(ctx context.Context, status string, page, limit int) ([]repository.WithdrawalRequest, int64, error) {
	return s.repo.ListWithdrawals(ctx, status, page, limit)
}
