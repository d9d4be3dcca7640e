package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

var errEnvVarNotFound error = errors.New("environment variable not found")

const (
	apiPortEnvKey       = "API_PORT"
	dbConnEnvKey        = "DATABASE_URL"
	redisEnvKey         = "REDIS_URL"
	accessSecretEnvKey  = "JWT_ACCESS_SECRET"
	refreshSecretEnvKey = "JWT_REFRESH_SECRET"
	masterKeyEnvKey     = "MASTER_KEY"
	mnemonicEnvKey      = "HD_WALLET_MNEMONIC"
)

type App struct {
	Port          string
	DatabaseURL   string
	RedisURL      string
	AccessSecret  string
	RefreshSecret string
	MasterKey     string
	Mnemonic      string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	ScanInterval    time.Duration
	AccrualInterval time.Duration

	CORSOrigins string

	// Withdrawal policy knobs.
	WithdrawalFeeRate            string
	WithdrawalMinFee             string
	LargeWithdrawalThresholdUsd  string
	MaxDailyWithdrawalRequests   int
	DefaultDailyWithdrawalLimitUsd string
}

func NewAppConfig() (App, error) {
	app := App{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		ScanInterval:    30 * time.Second,
		AccrualInterval: 60 * time.Second,

		WithdrawalFeeRate:              "0.001",
		WithdrawalMinFee:               "0.001",
		LargeWithdrawalThresholdUsd:    "10000",
		MaxDailyWithdrawalRequests:     10,
		DefaultDailyWithdrawalLimitUsd: "50000",
	}

	var err error
	if app.Port, err = requireEnv(apiPortEnvKey); err != nil {
		return App{}, err
	}
	if app.DatabaseURL, err = requireEnv(dbConnEnvKey); err != nil {
		return App{}, err
	}
	if app.RedisURL, err = requireEnv(redisEnvKey); err != nil {
		return App{}, err
	}
	if app.AccessSecret, err = requireEnv(accessSecretEnvKey); err != nil {
		return App{}, err
	}
	if app.RefreshSecret, err = requireEnv(refreshSecretEnvKey); err != nil {
		return App{}, err
	}
	if app.MasterKey, err = requireEnv(masterKeyEnvKey); err != nil {
		return App{}, err
	}

	// Optional: without a mnemonic the deposit pipeline refuses address
	// allocation but the rest of the API still serves.
	app.Mnemonic = os.Getenv(mnemonicEnvKey)
	app.CORSOrigins = os.Getenv("CORS_ORIGINS")

	if v := os.Getenv("JWT_ACCESS_EXPIRES"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return App{}, fmt.Errorf("parse JWT_ACCESS_EXPIRES: %w", err)
		}
		app.AccessTokenTTL = d
	}
	if v := os.Getenv("JWT_REFRESH_EXPIRES"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return App{}, fmt.Errorf("parse JWT_REFRESH_EXPIRES: %w", err)
		}
		app.RefreshTokenTTL = d
	}
	if v := os.Getenv("SCAN_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return App{}, fmt.Errorf("parse SCAN_INTERVAL: %w", err)
		}
		app.ScanInterval = d
	}
	if v := os.Getenv("ACCRUAL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return App{}, fmt.Errorf("parse ACCRUAL_INTERVAL: %w", err)
		}
		app.AccrualInterval = d
	}

	if v := os.Getenv("WITHDRAWAL_FEE_RATE"); v != "" {
		app.WithdrawalFeeRate = v
	}
	if v := os.Getenv("WITHDRAWAL_MIN_FEE"); v != "" {
		app.WithdrawalMinFee = v
	}
	if v := os.Getenv("LARGE_WITHDRAWAL_THRESHOLD_USD"); v != "" {
		app.LargeWithdrawalThresholdUsd = v
	}
	if v := os.Getenv("DEFAULT_DAILY_WITHDRAWAL_LIMIT_USD"); v != "" {
		app.DefaultDailyWithdrawalLimitUsd = v
	}
	if v := os.Getenv("MAX_DAILY_WITHDRAWAL_REQUESTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return App{}, fmt.Errorf("parse MAX_DAILY_WITHDRAWAL_REQUESTS: %w", err)
		}
		app.MaxDailyWithdrawalRequests = n
	}

	return app, nil
}

func requireEnv(key string) (string, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", errEnvVarNotFound, key)
	}
	return value, nil
}
