package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/db"
	"storefront/internal/infra/fxrate"
	"storefront/internal/infra/mq"
	"storefront/internal/infra/payment/razorpay"
	"storefront/internal/infra/payment/stripe"
	"storefront/internal/infra/receipt"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/logger"
	"storefront/internal/middleware"
	"storefront/internal/payment"
	"storefront/internal/server"
	"storefront/internal/usecase"
	"storefront/internal/validator"

	"go.uber.org/zap"
)

const shopName = "Storefront"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.GoEnv, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg.DSN(), log)
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	rtRepo := infraRepo.NewRefreshTokenRepository(gormDB)
	addressRepo := infraRepo.NewAddressGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	orderItemRepo := infraRepo.NewOrderItemGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB, infraRepo.WithLockTimeout(cfg.DBLockTimeout))

	//決済ゲートウェイ（署名検証も同じクライアント）
	httpClient := &http.Client{Timeout: cfg.PaymentTimeout}
	stripeClient := stripe.NewClient(stripe.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		BaseURL:       cfg.StripeBaseURL,
		HTTP:          httpClient,
	})
	razorpayClient := razorpay.NewClient(razorpay.Config{
		KeyID:         cfg.RazorpayKeyID,
		KeySecret:     cfg.RazorpayKeySecret,
		WebhookSecret: cfg.RazorpayWebhookSecret,
		BaseURL:       cfg.RazorpayBaseURL,
		HTTP:          httpClient,
	})
	gateways := []payment.Gateway{stripeClient, razorpayClient}
	verifiers := []payment.WebhookVerifier{stripeClient, razorpayClient}

	//Webhookのdedupe（無ければDBの条件付きUPDATEだけ）
	var dedupe usecase.EventDeduper
	if cfg.RedisAddr != "" {
		rdb := cache.NewRedisClient(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, webhook dedupe falls back to db", zap.Error(err))
		}
		dedupe = cache.NewRedisEventDeduper(rdb, "storefront")
	}

	//注文イベントの発行
	var publisher usecase.EventPublisher
	if cfg.RabbitMQURL != "" {
		conn, err := mq.Dial(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			return err
		}
		defer conn.Close()
		publisher = conn.Publisher(log)
	}

	//表示通貨の換算
	var fx usecase.CurrencyConverter
	if cfg.FXRatesURL != "" {
		fx = fxrate.NewCache(&fxrate.HTTPFetcher{URL: cfg.FXRatesURL}, fxrate.SystemClock{}, cfg.FXRatesTTL)
	}

	tokens := usecase.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL)
	pricing := usecase.NewPriceCalculator(cfg.BaseCurrency, cfg.FreeShippingThreshold, cfg.FlatShippingFee)

	//Usecase生成
	authUC := usecase.NewAuthUsecase(
		userRepo,
		rtRepo,
		auditRepo,
		validator.NewAuthValidator(userRepo),
		usecase.NewBcryptPasswordHasher(12),
		tokens,
		cfg.RefreshTokenTTL,
		log,
	)
	productUC := usecase.NewProductUsecase(productRepo, auditRepo, txm, fx, cfg.BaseCurrency, log)
	addressUC := usecase.NewAddressUsecase(addressRepo)
	cartUC := usecase.NewCartUsecase(cartRepo, cartRepo, productRepo, txm)
	orderUC := usecase.NewOrderUsecase(
		txm,
		orderRepo,
		orderItemRepo,
		addressRepo,
		productRepo,
		pricing,
		validator.NewOrderValidator(),
		receipt.NewRenderer(shopName),
		log,
	)
	checkoutUC := usecase.NewCheckoutUsecase(orderRepo, orderItemRepo, gateways, cfg.PaymentTimeout, cfg.FEURL, log)
	webhookUC := usecase.NewWebhookUsecase(txm, orderRepo, verifiers, dedupe, publisher, log)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, orderRepo, orderItemRepo, log)
	auditUC := usecase.NewAuditLogUsecase(auditRepo)

	//Handler生成
	handlers := server.Handlers{
		Auth:         handler.NewAuthHandler(authUC, cfg.RefreshTokenTTL, cfg.CookieSecure),
		Product:      handler.NewProductHandler(productUC),
		Address:      handler.NewAddressHandler(addressUC),
		Cart:         handler.NewCartHandler(cartUC),
		Order:        handler.NewOrderHandler(orderUC, checkoutUC),
		Webhook:      handler.NewWebhookHandler(webhookUC),
		AdminProduct: handler.NewAdminProductHandler(productUC),
		AdminOrder:   handler.NewAdminOrderHandler(adminOrderUC, auditUC),
		AdminUser:    handler.NewAdminUserHandler(authUC),
	}
	guards := handler.Guards{
		Auth:     middleware.AuthJWT(tokens),
		Optional: middleware.OptionalAuth(tokens),
		Version:  middleware.TokenVersionGuard(userRepo),
		Admin:    middleware.AdminRoleGuard(),
	}

	//Server起動
	e := server.New(log, cfg.FEURL, handlers, guards)
	return server.Start(ctx, e, server.Addr(cfg.Port), log)
}
