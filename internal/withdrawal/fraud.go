package withdrawal

import (
	"context"
	"time"

	"stakevault/internal/repository"

	"github.com/shopspring/decimal"
)

// Indicator severities.
const (
	SeverityLow    = "LOW"
	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)

// Indicator is one fired fraud rule. Scoring never blocks submission; it
// informs the admin reviewer.
type Indicator struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Score       int    `json:"score"`
}

// FraudPolicy carries the configured thresholds.
type FraudPolicy struct {
	LargeWithdrawalThresholdUsd decimal.Decimal
	MaxDailyWithdrawalRequests  int
}

type fraudInput struct {
	user       repository.User
	asset      repository.Asset
	amount     decimal.Decimal
	recent     []repository.WithdrawalRequest // last-24h non-rejected, excluding this one
	whitelist  *repository.AddressWhitelist   // nil when the destination is new
	now        time.Time
}

// scoreFraud applies the rule table and returns the fired indicators with
// their total.
func scoreFraud(policy FraudPolicy, in fraudInput) ([]Indicator, int) {
	var indicators []Indicator

	if in.whitelist == nil {
		indicators = append(indicators, Indicator{
			Type:        "NEW_ADDRESS",
			Severity:    SeverityMedium,
			Description: "Destination address has not been used before",
			Score:       30,
		})
	} else if in.whitelist.CooldownEndsAt.After(in.now) {
		indicators = append(indicators, Indicator{
			Type:        "NEW_ADDRESS",
			Severity:    SeverityHigh,
			Description: "Destination address is still in its whitelist cooldown",
			Score:       50,
		})
	}

	amountUsd := in.amount.Mul(in.asset.PriceUsd)
	if amountUsd.GreaterThan(in.user.DailyWithdrawalLimitUsd) {
		indicators = append(indicators, Indicator{
			Type:        "HIGH_AMOUNT",
			Severity:    SeverityHigh,
			Description: "Withdrawal exceeds the user's daily USD limit on its own",
			Score:       40,
		})
	} else if amountUsd.GreaterThan(policy.LargeWithdrawalThresholdUsd) {
		indicators = append(indicators, Indicator{
			Type:        "HIGH_AMOUNT",
			Severity:    SeverityMedium,
			Description: "Withdrawal exceeds the large-withdrawal threshold",
			Score:       20,
		})
	}

	dayTotal := repository.SumWithdrawalsUsd(in.recent, in.asset.PriceUsd).Add(amountUsd)
	if dayTotal.GreaterThan(in.user.DailyWithdrawalLimitUsd) {
		indicators = append(indicators, Indicator{
			Type:        "DAILY_LIMIT",
			Severity:    SeverityHigh,
			Description: "Cumulative 24h withdrawals exceed the user's daily limit",
			Score:       50,
		})
	}

	count := len(in.recent) + 1
	if count >= policy.MaxDailyWithdrawalRequests {
		indicators = append(indicators, Indicator{
			Type:        "VELOCITY",
			Severity:    SeverityHigh,
			Description: "Withdrawal request velocity at or above the daily cap",
			Score:       40,
		})
	} else if decimal.NewFromInt(int64(count)).GreaterThanOrEqual(
		decimal.NewFromInt(int64(policy.MaxDailyWithdrawalRequests)).Mul(decimal.RequireFromString("0.7"))) {
		indicators = append(indicators, Indicator{
			Type:        "VELOCITY",
			Severity:    SeverityMedium,
			Description: "Withdrawal request velocity approaching the daily cap",
			Score:       20,
		})
	}

	if in.now.Sub(in.user.CreatedAt) < 7*24*time.Hour {
		indicators = append(indicators, Indicator{
			Type:        "NEW_ACCOUNT",
			Severity:    SeverityMedium,
			Description: "Account is less than 7 days old",
			Score:       25,
		})
	}

	if !in.user.EmailVerified {
		indicators = append(indicators, Indicator{
			Type:        "UNVERIFIED_EMAIL",
			Severity:    SeverityLow,
			Description: "Email address has not been verified",
			Score:       15,
		})
	}

	total := 0
	for _, indicator := range indicators {
		total += indicator.Score
	}
	return indicators, total
}

// ScoreWithdrawal is the exported scoring entry point; it assembles the
// inputs and applies the rule table.
func (s *Service) ScoreWithdrawal(ctx context.Context, user repository.User, asset repository.Asset, chainID, destination string, amount decimal.Decimal) ([]Indicator, int, error) {
	now := s.clock.Now()

	recent, err := s.repo.RecentWithdrawals(ctx, user.ID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, 0, err
	}

	var whitelist *repository.AddressWhitelist
	entry, found, err := s.repo.GetWhitelistEntry(ctx, user.ID, chainID, destination)
	if err != nil {
		return nil, 0, err
	}
	if found {
		whitelist = &entry
	}

	indicators, total := scoreFraud(s.policy, fraudInput{
		user:      user,
		asset:     asset,
		amount:    amount,
		recent:    recent,
		whitelist: whitelist,
		now:       now,
	})
	return indicators, total, nil
}
