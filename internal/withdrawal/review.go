package withdrawal

import (
	"context"
	"strings"

	"stakevault/internal/domain"
	"stakevault/internal/ledger"
	"stakevault/internal/repository"
)

// Approve moves PENDING_REVIEW -> APPROVED and enqueues the payout job.
func (s *Service) Approve(ctx context.Context, reviewerID, requestID, adminNotes string) (repository.WithdrawalRequest, error) {
	request, err := s.repo.GetWithdrawalRequest(ctx, requestID)
	if err != nil {
		return repository.WithdrawalRequest{}, err
	}

	now := s.clock.Now()
	won, err := s.repo.TransitionWithdrawal(ctx, requestID,
		[]string{repository.WithdrawalPendingReview},
		map[string]any{
			"status":      repository.WithdrawalApproved,
			"admin_notes": adminNotes,
			"reviewed_by": reviewerID,
			"reviewed_at": now,
		})
	if err != nil {
		return repository.WithdrawalRequest{}, err
	}
	if !won {
		return repository.WithdrawalRequest{}, domain.NewError(domain.CodeStateForbidden,
			"request is not pending review")
	}

	if err := s.queue.EnqueuePayout(ctx, requestID, request.ChainID); err != nil {
		// the request stays APPROVED with no payout job; Retry accepts only
		// FAILED requests, so it is finished with MarkPaidManually
		s.logs.Errorw("failed to enqueue payout", "error", err, "request_id", requestID)
	}

	s.logs.Infow("withdrawal approved", "request_id", requestID, "reviewer", reviewerID)

	s.notify.Notify(ctx, request.UserID, "WITHDRAWAL_REVIEWED",
		"Withdrawal approved",
		"Your withdrawal request has been approved and queued for payout.",
		map[string]any{"requestId": requestID})

	return s.repo.GetWithdrawalRequest(ctx, requestID)
}

// Reject moves PENDING_REVIEW -> REJECTED and releases the reserve with a
// WITHDRAWAL_REJECTED credit. Admin notes are mandatory.
func (s *Service) Reject(ctx context.Context, reviewerID, requestID, adminNotes string) (repository.WithdrawalRequest, error) {
	if strings.TrimSpace(adminNotes) == "" {
		return repository.WithdrawalRequest{}, domain.NewError(domain.CodeNotesRequired, "admin notes are required")
	}

	request, err := s.repo.GetWithdrawalRequest(ctx, requestID)
	if err != nil {
		return repository.WithdrawalRequest{}, err
	}

	err = s.repo.RunInTx(ctx, func(txCtx context.Context) error {
		won, err := s.repo.TransitionWithdrawal(txCtx, requestID,
			[]string{repository.WithdrawalPendingReview},
			map[string]any{
				"status":      repository.WithdrawalRejected,
				"admin_notes": adminNotes,
				"reviewed_by": reviewerID,
				"reviewed_at": s.clock.Now(),
			})
		if err != nil {
			return err
		}
		if !won {
			return domain.NewError(domain.CodeStateForbidden, "request is not pending review")
		}

		_, err = s.poster.Post(txCtx, ledger.Posting{
			UserID:        request.UserID,
			AssetID:       request.AssetID,
			ChainID:       request.ChainID,
			EntryType:     ledger.EntryWithdrawalRejected,
			Amount:        request.Amount,
			ReferenceType: "WithdrawalRequest",
			ReferenceID:   request.ID,
		})
		return err
	})
	if err != nil {
		return repository.WithdrawalRequest{}, err
	}

	s.logs.Infow("withdrawal rejected", "request_id", requestID, "reviewer", reviewerID)

	s.notify.Notify(ctx, request.UserID, "WITHDRAWAL_REVIEWED",
		"Withdrawal rejected",
		"Your withdrawal request was rejected. The reserved amount has been returned.",
		map[string]any{"requestId": requestID})

	return s.repo.GetWithdrawalRequest(ctx, requestID)
}

// Retry requeues a FAILED request for the payout executor.
func (s *Service) Retry(ctx context.Context, reviewerID, requestID string) (repository.WithdrawalRequest, error) {
	request, err := s.repo.GetWithdrawalRequest(ctx, requestID)
	if err != nil {
		return repository.WithdrawalRequest{}, err
	}
	if request.Status != repository.WithdrawalFailed {
		return repository.WithdrawalRequest{}, domain.NewError(domain.CodeStateForbidden,
			"only failed requests can be retried")
	}

	if err := s.queue.EnqueuePayout(ctx, requestID, request.ChainID); err != nil {
		return repository.WithdrawalRequest{}, err
	}

	s.logs.Infow("withdrawal payout retried", "request_id", requestID, "reviewer", reviewerID)
	return request, nil
}

// MarkPaidManually finalizes a request paid outside the executor: guards
// status, clears the pending reserve with a WITHDRAWAL_PAID debit.
func (s *Service) MarkPaidManually(ctx context.Context, reviewerID, requestID, adminNotes, proofURL string) (repository.WithdrawalRequest, error) {
	if strings.TrimSpace(adminNotes) == "" {
		return repository.WithdrawalRequest{}, domain.NewError(domain.CodeNotesRequired, "admin notes are required")
	}

	request, err := s.repo.GetWithdrawalRequest(ctx, requestID)
	if err != nil {
		return repository.WithdrawalRequest{}, err
	}

	err = s.repo.RunInTx(ctx, func(txCtx context.Context) error {
		updates := map[string]any{
			"status":      repository.WithdrawalPaidManually,
			"admin_notes": adminNotes,
			"reviewed_by": reviewerID,
			"reviewed_at": s.clock.Now(),
		}
		if proofURL != "" {
			updates["manual_proof_url"] = proofURL
		}

		won, err := s.repo.TransitionWithdrawal(txCtx, requestID,
			[]string{
				repository.WithdrawalPendingReview,
				repository.WithdrawalApproved,
				repository.WithdrawalFailed,
			},
			updates)
		if err != nil {
			return err
		}
		if !won {
			return domain.NewError(domain.CodeStateForbidden,
				"request cannot be marked paid from its current state")
		}

		_, err = s.poster.Post(txCtx, ledger.Posting{
			UserID:        request.UserID,
			AssetID:       request.AssetID,
			ChainID:       request.ChainID,
			EntryType:     ledger.EntryWithdrawalPaid,
			Amount:        request.Amount,
			ReferenceType: "WithdrawalRequest",
			ReferenceID:   request.ID,
		})
		return err
	})
	if err != nil {
		return repository.WithdrawalRequest{}, err
	}

	s.logs.Infow("withdrawal marked paid manually", "request_id", requestID, "reviewer", reviewerID)

	s.notify.Notify(ctx, request.UserID, "WITHDRAWAL_COMPLETED",
		"Withdrawal completed",
		"Your withdrawal has been paid.",
		map[string]any{"requestId": requestID})

	return s.repo.GetWithdrawalRequest(ctx, requestID)
}
