package repository

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Roles, ordered weakest to strongest. Authorization compares indexes.
const (
	RoleUser       = "USER"
	RoleSupport    = "SUPPORT"
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPER_ADMIN"
)

var roleOrder = []string{RoleUser, RoleSupport, RoleAdmin, RoleSuperAdmin}

// RoleAtLeast reports whether role meets the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	return roleIndex(role) >= roleIndex(minimum) && roleIndex(role) >= 0
}

func roleIndex(role string) int {
	for i, r := range roleOrder {
		if r == role {
			return i
		}
	}
	return -1
}

type User struct {
	ID                      string    `gorm:"primaryKey;autoIncrement:false"`
	Email                   string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash            string    `gorm:"not null"`
	Role                    string    `gorm:"type:varchar(16);not null;default:USER"`
	EmailVerified           bool      `gorm:"not null;default:false"`
	TwoFactorEnabled        bool      `gorm:"not null;default:false"`
	KycStatus               string    `gorm:"type:varchar(16);not null;default:NONE"`
	IsActive                bool      `gorm:"not null;default:true"`
	DailyWithdrawalLimitUsd decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	LastLoginAt             *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

type Session struct {
	ID               string `gorm:"primaryKey;autoIncrement:false"`
	UserID           string `gorm:"not null;index"`
	RefreshTokenHash string `gorm:"size:64;uniqueIndex;not null"`
	DeviceName       string `gorm:"size:255"`
	IPAddress        string `gorm:"size:64"`
	UserAgent        string `gorm:"size:512"`
	LastActiveAt     time.Time
	ExpiresAt        time.Time `gorm:"not null;index"`
	IsRevoked        bool      `gorm:"not null;default:false"`
	CreatedAt        time.Time
}

type TwoFactorSecret struct {
	UserID          string `gorm:"primaryKey;autoIncrement:false"`
	EncryptedSecret string `gorm:"not null"`
	IsVerified      bool   `gorm:"not null;default:false"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type RecoveryCode struct {
	ID        string `gorm:"primaryKey;autoIncrement:false"`
	UserID    string `gorm:"not null;index"`
	CodeHash  string `gorm:"size:64;not null"`
	Used      bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
}

type Chain struct {
	ID                    string `gorm:"primaryKey;autoIncrement:false"`
	Slug                  string `gorm:"size:32;uniqueIndex;not null"`
	ChainID               int64  `gorm:"not null"`
	RPCEndpoint           string `gorm:"size:512;not null"`
	ExplorerURL           string `gorm:"size:512"`
	ConfirmationsRequired int    `gorm:"not null;default:12"`
	IsActive              bool   `gorm:"not null;default:true"`
	CreatedAt             time.Time
}

type Asset struct {
	ID              string  `gorm:"primaryKey;autoIncrement:false"`
	ChainID         string  `gorm:"not null;index"`
	Symbol          string  `gorm:"size:16;not null"`
	Decimals        int     `gorm:"not null;default:18"`
	ContractAddress *string `gorm:"size:42"` // nil means native token
	IsNative        bool    `gorm:"not null;default:false"`
	IsActive        bool    `gorm:"not null;default:true"`
	PriceUsd        decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Pool types.
const (
	PoolFlexible = "FLEXIBLE"
	PoolFixed    = "FIXED"
)

type Pool struct {
	ID            string `gorm:"primaryKey;autoIncrement:false"`
	Name          string `gorm:"size:128;not null"`
	Slug          string `gorm:"size:64;uniqueIndex;not null"`
	AssetID       string `gorm:"not null;index"`
	Type          string `gorm:"size:16;not null"`
	LockDays      int    `gorm:"not null;default:0"`
	CurrentApr    decimal.Decimal  `gorm:"type:decimal(36,18);not null"`
	MinStake      decimal.Decimal  `gorm:"type:decimal(36,18);not null"`
	MaxStake      *decimal.Decimal `gorm:"type:decimal(36,18)"`
	TotalCapacity *decimal.Decimal `gorm:"type:decimal(36,18)"`
	TotalStaked   decimal.Decimal  `gorm:"type:decimal(36,18);not null;default:0"`
	CooldownHours int    `gorm:"not null;default:0"`
	IsActive      bool   `gorm:"not null;default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type AprSchedule struct {
	ID            string          `gorm:"primaryKey;autoIncrement:false"`
	PoolID        string          `gorm:"not null;index"`
	Apr           decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	EffectiveFrom time.Time       `gorm:"not null;index"`
	EffectiveTo   *time.Time
	CreatedAt     time.Time
}

type DepositAddress struct {
	ID              string  `gorm:"primaryKey;autoIncrement:false"`
	UserID          string  `gorm:"not null;uniqueIndex:idx_user_chain_addr"`
	ChainID         string  `gorm:"not null;uniqueIndex:idx_user_chain_addr;uniqueIndex:idx_chain_derivation"`
	Address         string  `gorm:"size:42;not null;index"`
	DerivationPath  *string `gorm:"size:128"`
	DerivationIndex *int64  `gorm:"uniqueIndex:idx_chain_derivation"`
	CreatedAt       time.Time
}

// Deposit statuses.
const (
	DepositAwaiting   = "AWAITING"
	DepositConfirming = "CONFIRMING"
	DepositConfirmed  = "CONFIRMED"
	DepositFailed     = "FAILED"
)

type Deposit struct {
	ID               string `gorm:"primaryKey;autoIncrement:false"`
	UserID           string `gorm:"not null;index"`
	AssetID          string `gorm:"not null"`
	ChainID          string `gorm:"not null;uniqueIndex:idx_tx_log_chain"`
	DepositAddressID string `gorm:"not null"`
	TxHash           string `gorm:"size:66;not null;uniqueIndex:idx_tx_log_chain"`
	LogIndex         int    `gorm:"not null;default:0;uniqueIndex:idx_tx_log_chain"`
	FromAddress      string `gorm:"size:42;not null"`
	Amount           decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	BlockNumber      int64  `gorm:"not null;index"`
	Confirmations    int    `gorm:"not null;default:0"`
	Status           string `gorm:"size:16;not null;index"`
	ConfirmedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Stake position statuses.
const (
	StakeActive    = "ACTIVE"
	StakeUnstaking = "UNSTAKING"
	StakeCompleted = "COMPLETED"
	StakeCancelled = "CANCELLED"
)

type StakePosition struct {
	ID                    string          `gorm:"primaryKey;autoIncrement:false"`
	UserID                string          `gorm:"not null;index"`
	PoolID                string          `gorm:"not null;index"`
	Amount                decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	RewardsAccrued        decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	RewardsClaimed        decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	LastRewardCalculation time.Time       `gorm:"not null"`
	Status                string          `gorm:"size:16;not null;index"`
	LockedUntil           *time.Time
	CooldownEndsAt        *time.Time `gorm:"index"`
	UnstakedAt            *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Withdrawal request statuses.
const (
	WithdrawalPendingReview = "PENDING_REVIEW"
	WithdrawalApproved      = "APPROVED"
	WithdrawalRejected      = "REJECTED"
	WithdrawalProcessing    = "PROCESSING"
	WithdrawalSent          = "SENT"
	WithdrawalConfirming    = "CONFIRMING"
	WithdrawalCompleted     = "COMPLETED"
	WithdrawalFailed        = "FAILED"
	WithdrawalPaidManually  = "PAID_MANUALLY"
)

type WithdrawalRequest struct {
	ID                 string          `gorm:"primaryKey;autoIncrement:false"`
	UserID             string          `gorm:"not null;index"`
	AssetID            string          `gorm:"not null"`
	ChainID            string          `gorm:"not null"`
	Amount             decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	Fee                decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	NetAmount          decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	DestinationAddress string          `gorm:"size:42;not null"`
	Status             string          `gorm:"size:16;not null;index"`
	UserNotes          string          `gorm:"type:text"`
	AdminNotes         string          `gorm:"type:text"`
	ReviewedBy         *string
	ReviewedAt         *time.Time
	ManualProofURL     *string        `gorm:"size:512"`
	IdempotencyKey     string         `gorm:"size:128;uniqueIndex;not null"`
	FraudScore         int            `gorm:"not null;default:0"`
	FraudIndicators    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Payout transaction statuses.
const (
	PayoutPending    = "PENDING"
	PayoutSent       = "SENT"
	PayoutConfirming = "CONFIRMING"
	PayoutConfirmed  = "CONFIRMED"
	PayoutFailed     = "FAILED"
)

type PayoutTx struct {
	ID                  string  `gorm:"primaryKey;autoIncrement:false"`
	WithdrawalRequestID string  `gorm:"uniqueIndex;not null"`
	TxHash              *string `gorm:"size:66"`
	Nonce               *uint64
	GasUsed             *uint64
	Status              string `gorm:"size:16;not null"`
	Confirmations       int    `gorm:"not null;default:0"`
	ErrorMessage        string `gorm:"type:text"`
	Attempts            int    `gorm:"not null;default:0"`
	SentAt              *time.Time
	ConfirmedAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Ledger entry directions.
const (
	DirectionCredit = "CREDIT"
	DirectionDebit  = "DEBIT"
)

type LedgerEntry struct {
	ID            string  `gorm:"primaryKey;autoIncrement:false"`
	UserID        *string `gorm:"index:idx_ledger_tuple"`
	AssetID       string  `gorm:"not null;index:idx_ledger_tuple"`
	ChainID       string  `gorm:"not null;index:idx_ledger_tuple"`
	EntryType     string  `gorm:"size:32;not null"`
	Direction     string  `gorm:"size:8;not null"`
	Amount        decimal.Decimal  `gorm:"type:decimal(36,18);not null"`
	BalanceAfter  *decimal.Decimal `gorm:"type:decimal(36,18)"`
	ReferenceType string  `gorm:"size:32;not null"`
	ReferenceID   string  `gorm:"size:64;not null;index"`
	// DedupKey is "<entryType>:<referenceType>:<referenceID>" for one-shot
	// transitions and nil for repeatable entries (REWARD_ACCRUED, ADJUSTMENT).
	DedupKey      *string `gorm:"size:160;uniqueIndex"`
	Metadata      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time      `gorm:"index"`
}

type BalanceCache struct {
	UserID             string          `gorm:"primaryKey;autoIncrement:false"`
	AssetID            string          `gorm:"primaryKey;autoIncrement:false"`
	ChainID            string          `gorm:"primaryKey;autoIncrement:false"`
	Available          decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	Staked             decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	RewardsAccrued     decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	WithdrawalsPending decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	UpdatedAt          time.Time
}

type AddressWhitelist struct {
	ID             string `gorm:"primaryKey;autoIncrement:false"`
	UserID         string `gorm:"not null;uniqueIndex:idx_user_chain_dest"`
	ChainID        string `gorm:"not null;uniqueIndex:idx_user_chain_dest"`
	Address        string `gorm:"size:42;not null;uniqueIndex:idx_user_chain_dest"`
	Label          string `gorm:"size:128"`
	CooldownEndsAt time.Time `gorm:"not null"`
	CreatedAt      time.Time
}

type TreasuryWallet struct {
	ID                  string `gorm:"primaryKey;autoIncrement:false"`
	ChainID             string `gorm:"not null;index"`
	Address             string `gorm:"size:42;not null"`
	Label               string `gorm:"size:128"`
	EncryptedPrivateKey string `gorm:"not null"`
	IsActive            bool   `gorm:"not null;default:true"`
	CreatedAt           time.Time
}

type AuditLog struct {
	ID         string  `gorm:"primaryKey;autoIncrement:false"`
	ActorID    *string `gorm:"index"`
	ActorEmail string  `gorm:"size:255"`
	Action     string  `gorm:"size:64;not null"`
	Entity     string  `gorm:"size:64;not null"`
	EntityID   string  `gorm:"size:64;not null;index"`
	Before     datatypes.JSON `gorm:"type:jsonb"`
	After      datatypes.JSON `gorm:"type:jsonb"`
	IPAddress  string  `gorm:"size:64"`
	UserAgent  string  `gorm:"size:512"`
	CreatedAt  time.Time
}

type Notification struct {
	ID        string `gorm:"primaryKey;autoIncrement:false"`
	UserID    string `gorm:"not null;index"`
	Type      string `gorm:"size:32;not null"`
	Title     string `gorm:"size:255;not null"`
	Message   string `gorm:"type:text;not null"`
	Data      datatypes.JSON `gorm:"type:jsonb"`
	IsRead    bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
}

type SystemConfig struct {
	Key       string         `gorm:"primaryKey;size:128"`
	Value     datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time
}

// Models lists every table for migration.
func Models() []any {
	return []any{
		&User{}, &Session{}, &TwoFactorSecret{}, &RecoveryCode{},
		&Chain{}, &Asset{}, &Pool{}, &AprSchedule{},
		&DepositAddress{}, &Deposit{},
		&StakePosition{},
		&WithdrawalRequest{}, &PayoutTx{},
		&LedgerEntry{}, &BalanceCache{},
		&AddressWhitelist{}, &TreasuryWallet{},
		&AuditLog{}, &Notification{}, &SystemConfig{},
	}
}
