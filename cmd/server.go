package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stakevault/internal/audit"
	"stakevault/internal/auth"
	"stakevault/internal/config"
	"stakevault/internal/db"
	"stakevault/internal/deposit"
	"stakevault/internal/ethereum"
	"stakevault/internal/http/handler"
	"stakevault/internal/http/handler/middleware"
	"stakevault/internal/http/payload"
	"stakevault/internal/http/server"
	"stakevault/internal/ledger"
	"stakevault/internal/notify"
	"stakevault/internal/payout"
	"stakevault/internal/queue"
	"stakevault/internal/repository"
	"stakevault/internal/staking"
	"stakevault/internal/withdrawal"
	"stakevault/pkg/cipher"
	"stakevault/pkg/clock"
	"stakevault/pkg/hdwallet"
	tokenIssuer "stakevault/pkg/jwt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func Start() error {
	logger := newZapLogger("stakevault", zapcore.InfoLevel)
	defer logger.Sync()

	cfg, err := config.NewAppConfig()
	if err != nil {
		logger.Errorw("failed to create config", "error", err)
		return err
	}

	gormDB, err := db.NewGormDB(cfg.DatabaseURL)
	if err != nil {
		logger.Errorw("failed to connect to database", "error", err)
		return err
	}

	store := repository.NewStore(gormDB)
	if err := store.Migrate(); err != nil {
		logger.Errorw("failed to migrate tables to database", "error", err)
		return err
	}

	wallClock := clock.Wall{}

	// chain clients, one per active chain row
	chains, err := store.ListActiveChains(context.Background())
	if err != nil {
		logger.Errorw("failed to list chains", "error", err)
		return err
	}
	if len(chains) == 0 {
		// fresh deployment: seed the catalog from the default RPC endpoint
		rpcEndpoint := os.Getenv("ETHEREUM_RPC_URL")
		if rpcEndpoint != "" {
			if err := store.SeedChainCatalog(context.Background(), rpcEndpoint); err != nil {
				logger.Errorw("failed to seed chain catalog", "error", err)
				return err
			}
			chains, err = store.ListActiveChains(context.Background())
			if err != nil {
				return err
			}
		}
	}

	depositChains := make(map[string]deposit.ChainService, len(chains))
	payoutChains := make(map[string]payout.ChainService, len(chains))
	for _, chain := range chains {
		client, err := ethclient.Dial(chain.RPCEndpoint)
		if err != nil {
			logger.Errorw("rpc connection failed", "error", err, "chain", chain.Slug)
			return err
		}
		node := ethereum.NewNodeService(client)
		depositChains[chain.ID] = node
		payoutChains[chain.ID] = node
	}

	sealer, err := cipher.NewSealer([]byte(cfg.MasterKey))
	if err != nil {
		logger.Errorw("failed to create secret sealer", "error", err)
		return err
	}

	var wallet *hdwallet.HDWallet
	if cfg.Mnemonic != "" {
		wallet, err = hdwallet.New(cfg.Mnemonic)
		if err != nil {
			logger.Errorw("failed to open hd wallet", "error", err)
			return err
		}
	}

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Errorw("failed to parse redis url", "error", err)
		return err
	}
	redisClient := redis.NewClient(redisOpt)

	queueClient, err := queue.NewClient(cfg.RedisURL)
	if err != nil {
		logger.Errorw("failed to create queue client", "error", err)
		return err
	}
	defer queueClient.Close()

	// services
	jwtService := tokenIssuer.NewJWTService([]byte(cfg.AccessSecret))
	poster := ledger.NewPoster(logger, store, wallClock.Now)
	auditor := audit.NewWriter(logger, store, wallClock.Now)
	notifier := notify.NewService(logger, store, wallClock.Now)

	twoFactor := auth.NewTwoFactor(logger, store, sealer, wallClock)
	authService := auth.NewService(logger, store, jwtService, twoFactor, wallClock, auth.Config{
		AccessTTL:                      cfg.AccessTokenTTL,
		RefreshTTL:                     cfg.RefreshTokenTTL,
		DefaultDailyWithdrawalLimitUsd: decimal.RequireFromString(cfg.DefaultDailyWithdrawalLimitUsd),
	})

	var deriver deposit.AddressDeriver
	if wallet != nil {
		deriver = wallet
	}
	depositService := deposit.NewService(logger, store, depositChains, deriver, poster, notifier, wallClock)

	stakingEngine := staking.NewEngine(logger, store, poster, notifier, wallClock)

	withdrawalService := withdrawal.NewService(logger, store, poster, queueClient, notifier, wallClock,
		withdrawal.FeePolicy{
			FeeRate: decimal.RequireFromString(cfg.WithdrawalFeeRate),
			MinFee:  decimal.RequireFromString(cfg.WithdrawalMinFee),
		},
		withdrawal.FraudPolicy{
			LargeWithdrawalThresholdUsd: decimal.RequireFromString(cfg.LargeWithdrawalThresholdUsd),
			MaxDailyWithdrawalRequests:  cfg.MaxDailyWithdrawalRequests,
		})

	executor := payout.NewExecutor(logger, store, payoutChains, sealer, poster, queueClient, notifier, wallClock)

	// handlers
	decoder := payload.DecodeValidator{}
	authHandler := handler.NewAuthHandler(logger, decoder, authService, twoFactor)
	userHandler := handler.NewUserHandler(logger, store, stakingEngine, withdrawalService, notifier)
	stakingHandler := handler.NewStakingHandler(logger, decoder, stakingEngine)
	depositHandler := handler.NewDepositHandler(logger, decoder, depositService)
	withdrawalHandler := handler.NewWithdrawalHandler(logger, decoder, withdrawalService)
	adminHandler := handler.NewAdminHandler(logger, decoder, store, withdrawalService, stakingEngine, sealer, auditor, wallClock)

	// middleware
	authMW := middleware.NewAuthMiddleware(logger, authService)
	rateMW := middleware.NewRateLimitMiddleware(logger, redisClient, middleware.DefaultTiers())

	mux := http.NewServeMux()

	// public
	mux.HandleFunc(handler.Register, rateMW.Tighten("register", 3, authHandler.HandleRegister))
	mux.HandleFunc(handler.Login, rateMW.Tighten("login", 5, authHandler.HandleLogin))
	mux.HandleFunc(handler.Refresh, rateMW.Tighten("refresh", 10, authHandler.HandleRefresh))
	mux.HandleFunc(handler.ListPools, stakingHandler.HandleListPools)
	mux.HandleFunc(handler.PoolCalculator, stakingHandler.HandlePoolCalculator)

	// authenticated user
	mux.HandleFunc(handler.Logout, authMW.Require(repository.RoleUser, authHandler.HandleLogout))
	mux.HandleFunc(handler.ListSessions, authMW.Require(repository.RoleUser, authHandler.HandleListSessions))
	mux.HandleFunc(handler.RevokeSession, authMW.Require(repository.RoleUser, authHandler.HandleRevokeSession))
	mux.HandleFunc(handler.TwoFactorSetup, authMW.Require(repository.RoleUser, authHandler.HandleTwoFactorSetup))
	mux.HandleFunc(handler.TwoFactorVerify, authMW.Require(repository.RoleUser, authHandler.HandleTwoFactorVerify))
	mux.HandleFunc(handler.TwoFactorDisable, authMW.Require(repository.RoleUser, authHandler.HandleTwoFactorDisable))
	mux.HandleFunc(handler.GetProfile, authMW.Require(repository.RoleUser, userHandler.HandleGetProfile))
	mux.HandleFunc(handler.GetDashboard, authMW.Require(repository.RoleUser, userHandler.HandleGetDashboard))
	mux.HandleFunc(handler.GetBalances, authMW.Require(repository.RoleUser, userHandler.HandleGetBalances))
	mux.HandleFunc(handler.GetNotifications, authMW.Require(repository.RoleUser, userHandler.HandleGetNotifications))
	mux.HandleFunc(handler.MarkNotification, authMW.Require(repository.RoleUser, userHandler.HandleMarkNotificationRead))
	mux.HandleFunc(handler.CreateStake, authMW.Require(repository.RoleUser, stakingHandler.HandleCreateStake))
	mux.HandleFunc(handler.ListStakes, authMW.Require(repository.RoleUser, stakingHandler.HandleListStakes))
	mux.HandleFunc(handler.Unstake, authMW.Require(repository.RoleUser, stakingHandler.HandleUnstake))
	mux.HandleFunc(handler.ClaimRewards, authMW.Require(repository.RoleUser, stakingHandler.HandleClaimRewards))
	mux.HandleFunc(handler.GetDepositAddress, authMW.Require(repository.RoleUser, depositHandler.HandleGetDepositAddress))
	mux.HandleFunc(handler.ListDeposits, authMW.Require(repository.RoleUser, depositHandler.HandleListDeposits))
	mux.HandleFunc(handler.SubmitWithdrawal, authMW.Require(repository.RoleUser, withdrawalHandler.HandleSubmit))
	mux.HandleFunc(handler.ListWithdrawals, authMW.Require(repository.RoleUser, withdrawalHandler.HandleList))
	mux.HandleFunc(handler.GetWithdrawal, authMW.Require(repository.RoleUser, withdrawalHandler.HandleGet))

	// admin
	mux.HandleFunc(handler.AdminListWithdrawals, authMW.Require(repository.RoleAdmin, adminHandler.HandleListWithdrawals))
	mux.HandleFunc(handler.AdminApprove, authMW.Require(repository.RoleAdmin, adminHandler.HandleApprove))
	mux.HandleFunc(handler.AdminReject, authMW.Require(repository.RoleAdmin, adminHandler.HandleReject))
	mux.HandleFunc(handler.AdminMarkPaid, authMW.Require(repository.RoleAdmin, adminHandler.HandleMarkPaid))
	mux.HandleFunc(handler.AdminRetryPayout, authMW.Require(repository.RoleAdmin, adminHandler.HandleRetryPayout))
	mux.HandleFunc(handler.AdminCreatePool, authMW.Require(repository.RoleAdmin, adminHandler.HandleCreatePool))
	mux.HandleFunc(handler.AdminPoolApr, authMW.Require(repository.RoleAdmin, adminHandler.HandlePoolApr))
	mux.HandleFunc(handler.AdminCancelStake, authMW.Require(repository.RoleAdmin, adminHandler.HandleCancelStake))
	mux.HandleFunc(handler.AdminCreateTreasury, authMW.Require(repository.RoleSuperAdmin, adminHandler.HandleCreateTreasury))

	var hdlr http.Handler = mux
	hdlr = rateMW.Limit(hdlr)
	if cfg.CORSOrigins != "" {
		hdlr = middleware.NewCORSMiddleware(cfg.CORSOrigins).CORS(hdlr)
	}
	hdlr = middleware.NewLoggingMiddleware(logger).Logging(hdlr)
	hdlr = middleware.NewRequestIDMiddleware().RequestID(hdlr)

	srv := server.NewHTTP(logger, hdlr, cfg.Port)

	// background workers
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go runTicker(workerCtx, cfg.ScanInterval, func(ctx context.Context) {
		depositService.RunScannerPass(ctx)
	})
	go runTicker(workerCtx, cfg.AccrualInterval, func(ctx context.Context) {
		stakingEngine.AccrueAll(ctx)
		stakingEngine.SweepCooldowns(ctx)
	})

	asynqServer := newAsynqServer(cfg.RedisURL, logger, executor)
	go func() {
		if err := asynqServer.Run(newPayoutMux(executor)); err != nil {
			logger.Errorw("asynq server stopped", "error", err)
		}
	}()

	err = run(srv)
	cancelWorkers()
	asynqServer.Shutdown()
	return err
}

// newAsynqServer builds the payout worker. Concurrency 1 keeps the hot
// wallet nonce strictly sequential per chain.
func newAsynqServer(redisURL string, logger *zap.SugaredLogger, executor *payout.Executor) *asynq.Server {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		logger.Fatalw("failed to parse redis uri for asynq", "error", err)
	}

	return asynq.NewServer(opt, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			queue.QueuePayouts: 1,
		},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return time.Duration(1<<min(n, 6)) * 30 * time.Second
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			if errors.Is(err, payout.ErrRetryLater) {
				return
			}
			logger.Errorw("payout task failed", "task", task.Type(), "error", err)
		}),
	})
}

func newPayoutMux(executor *payout.Executor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskProcessPayout, func(ctx context.Context, task *asynq.Task) error {
		payloadData, err := queue.DecodePayoutPayload(task.Payload())
		if err != nil {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return executor.ProcessPayout(ctx, payloadData.WithdrawalRequestID)
	})
	mux.HandleFunc(queue.TaskCheckPayoutStatus, func(ctx context.Context, task *asynq.Task) error {
		payloadData, err := queue.DecodePayoutPayload(task.Payload())
		if err != nil {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return executor.CheckPayoutStatus(ctx, payloadData.WithdrawalRequestID)
	})
	return mux
}

func runTicker(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func run(srv *server.HTTPServer) error {
	// expect a signal to gracefully shutdown the server
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	errChan := srv.Run()

	var err error
	select {
	case <-sig:
	case err = <-errChan:
	}

	sdErr := srv.Shutdown()
	if err == http.ErrServerClosed && sdErr != nil {
		return fmt.Errorf("server shutdown: %w", sdErr)
	}

	return err
}

func newZapLogger(service string, level zapcore.Level) *zap.SugaredLogger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	return zap.New(core, zap.AddCaller()).Sugar().With("service", service)
}
