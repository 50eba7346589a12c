package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accountapp "waterwatch/internal/accounts/application"
	accountpostgres "waterwatch/internal/accounts/infrastructure/postgres"
	accountredis "waterwatch/internal/accounts/infrastructure/redis"
	accounthttp "waterwatch/internal/accounts/interfaces/http"
	accountnotify "waterwatch/internal/accounts/notify"
	alertapp "waterwatch/internal/alerts/application"
	alertpostgres "waterwatch/internal/alerts/infrastructure/postgres"
	alerthttp "waterwatch/internal/alerts/interfaces/http"
	alertnotify "waterwatch/internal/alerts/notify"
	apihttp "waterwatch/internal/api/http"
	"waterwatch/internal/audit"
	"waterwatch/internal/auth"
	issueapp "waterwatch/internal/issues/application"
	issuepostgres "waterwatch/internal/issues/infrastructure/postgres"
	issuehttp "waterwatch/internal/issues/interfaces/http"
	"waterwatch/internal/observability/metrics"
	reportapp "waterwatch/internal/reports/application"
	reporthttp "waterwatch/internal/reports/interfaces/http"
	usageapp "waterwatch/internal/usage/application"
	usagepostgres "waterwatch/internal/usage/infrastructure/postgres"
	usagehttp "waterwatch/internal/usage/interfaces/http"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	readingRepo := usagepostgres.NewReadingRepository(db)
	alertRepo := alertpostgres.NewAlertRepository(db)
	userRepo := accountpostgres.NewUserRepository(db)
	issueRepo := issuepostgres.NewReportRepository(db)

	alertBroker := alerthttp.NewSSEBroker()
	alertNotifiers := []alertapp.AlertNotifier{alertBroker}
	if cfg.AlertWebhookURL != "" {
		channel, err := alertnotify.NewWebhookChannel(cfg.AlertWebhookURL)
		if err != nil {
			logger.Fatalf("alert webhook error: %v", err)
		}
		tpl, err := alertnotify.NewTemplate(cfg.AlertNotifyTemplate)
		if err != nil {
			logger.Fatalf("alert template error: %v", err)
		}
		alertNotifier, err := alertnotify.NewNotifier(channel, logger,
			alertnotify.WithTemplate(tpl),
			alertnotify.WithCooldown(cfg.AlertNotifyCooldown),
		)
		if err != nil {
			logger.Fatalf("alert notifier error: %v", err)
		}
		alertNotifiers = append(alertNotifiers, alertNotifier)
	}
	alertService, err := alertapp.NewService(alertRepo, alertapp.WithNotifier(alertnotify.NewMultiNotifier(alertNotifiers...)))
	if err != nil {
		logger.Fatalf("alert service error: %v", err)
	}

	detectionCfg, err := usageapp.LoadDetectionConfig()
	if err != nil {
		logger.Fatalf("detection config error: %v", err)
	}
	usageService, err := usageapp.NewService(readingRepo, detectionCfg, logger, usageapp.WithAlertEmitter(alertService))
	if err != nil {
		logger.Fatalf("usage service error: %v", err)
	}
	simulator, err := usageapp.NewSimulator(readingRepo)
	if err != nil {
		logger.Fatalf("simulator error: %v", err)
	}

	redisClient, err := accountredis.NewClient(cfg.RedisAddr)
	if err != nil {
		logger.Fatalf("redis error: %v", err)
	}
	defer redisClient.Close()
	otpStore, err := accountredis.NewOTPStore(redisClient)
	if err != nil {
		logger.Fatalf("otp store error: %v", err)
	}

	var mailer accountnotify.Mailer
	if cfg.SMTPHost != "" {
		smtpMailer, err := accountnotify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
		if err != nil {
			logger.Fatalf("smtp mailer error: %v", err)
		}
		mailer = smtpMailer
	} else {
		logger.Printf("SMTP_HOST not set, logging OTP codes instead of sending mail")
		mailer = accountnotify.NewLogMailer(logger)
	}
	accountService, err := accountapp.NewService(userRepo, otpStore, mailer, []byte(cfg.JWTSecret), logger)
	if err != nil {
		logger.Fatalf("account service error: %v", err)
	}

	reportService, err := reportapp.NewService(readingRepo)
	if err != nil {
		logger.Fatalf("report service error: %v", err)
	}
	issueService, err := issueapp.NewService(issueRepo)
	if err != nil {
		logger.Fatalf("issue service error: %v", err)
	}

	usageHandler, err := usagehttp.NewHandler(usageService, simulator)
	if err != nil {
		logger.Fatalf("usage handler error: %v", err)
	}
	alertHandler, err := alerthttp.NewHandler(alertService, auditRepo)
	if err != nil {
		logger.Fatalf("alert handler error: %v", err)
	}
	accountHandler, err := accounthttp.NewHandler(accountService)
	if err != nil {
		logger.Fatalf("account handler error: %v", err)
	}
	reportHandler, err := reporthttp.NewHandler(reportService)
	if err != nil {
		logger.Fatalf("report handler error: %v", err)
	}
	issueHandler, err := issuehttp.NewHandler(issueService, auditRepo)
	if err != nil {
		logger.Fatalf("issue handler error: %v", err)
	}

	router := mux.NewRouter()
	accountHandler.Register(router)
	router.Handle("/api/v1/alerts/stream", alerthttp.NewStreamHandler(alertBroker)).Methods(http.MethodGet)
	usageHandler.Register(router)
	alertHandler.Register(router)
	reportHandler.Register(router)
	issueHandler.Register(router)

	router.Handle("/api/v1/admin/stats", apihttp.NewAdminStatsHandler(db))
	router.Handle("/api/v1/admin/usage", apihttp.NewAdminUsageHandler(db))
	router.Handle("/api/v1/admin/alerts", apihttp.NewAdminAlertsHandler(db))
	router.Handle("/api/v1/admin/users", apihttp.NewAdminUsersHandler(db))
	router.Handle("/api/v1/admin/exports/usage.csv", apihttp.NewExportUsageCSVHandler(db))

	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	exempt := append([]string{"/healthz", "/metrics"}, accounthttp.ExemptAuthPaths()...)
	policy := auth.NewDefaultPolicy(exempt, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(router), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL         string
	HTTPAddr            string
	RedisAddr           string
	JWTSecret           string
	SMTPHost            string
	SMTPPort            string
	SMTPUsername        string
	SMTPPassword        string
	SMTPFrom            string
	AlertWebhookURL     string
	AlertNotifyTemplate string
	AlertNotifyCooldown time.Duration
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:         getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:            getenvDefault("HTTP_ADDR", ":8080"),
		RedisAddr:           getenvDefault("REDIS_ADDR", "localhost:6379"),
		JWTSecret:           getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		SMTPHost:            getenvDefault("SMTP_HOST", ""),
		SMTPPort:            getenvDefault("SMTP_PORT", "587"),
		SMTPUsername:        getenvDefault("SMTP_USERNAME", ""),
		SMTPPassword:        getenvDefault("SMTP_PASSWORD", ""),
		SMTPFrom:            getenvDefault("SMTP_FROM", "no-reply@waterwatch.local"),
		AlertWebhookURL:     getenvDefault("ALERT_WEBHOOK_URL", ""),
		AlertNotifyTemplate: getenvDefault("ALERT_NOTIFY_TEMPLATE", ""),
		AlertNotifyCooldown: getenvDuration("ALERT_NOTIFY_COOLDOWN", 0),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the underlying writer usable for streaming responses.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
