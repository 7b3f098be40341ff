package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/optiktrack/api-auth/internal/auth"
	"github.com/optiktrack/api-auth/internal/identity"
	"github.com/optiktrack/api-auth/internal/mailer"
	"github.com/optiktrack/api-auth/internal/utils/db"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := auth.NewConfig(
		[]byte(os.Getenv("JWT_SECRET")),
		os.Getenv("AUTH_ISSUER"),
		os.Getenv("AUTH_AUDIENCE"),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid token configuration")
	}
	cfg.RevokeFamilyOnReplay = os.Getenv("REVOKE_FAMILY_ON_REPLAY") == "true"

	database, err := db.GetDB()
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := auth.Migrate(database); err != nil {
		log.Fatal().Err(err).Msg("auth migration failed")
	}
	if err := identity.Migrate(database); err != nil {
		log.Fatal().Err(err).Msg("identity migration failed")
	}

	// Ledger lives in Redis when available, otherwise in Postgres; either
	// way a short-lived cache keeps ValidateBearer off the store on every
	// request.
	var ledger auth.RevocationLedger
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
		ledger = auth.NewRedisRevocationLedger(client, "optiktrack")
		log.Info().Str("addr", addr).Msg("revocation ledger on redis")
	} else {
		ledger = auth.NewGormRevocationLedger(database)
	}
	ledger = auth.NewCachedLedger(ledger, ledgerCacheTTL())

	users := identity.NewGormStore(database)
	refreshStore := auth.NewGormRefreshStore(database)
	svc := auth.NewTokenService(cfg, refreshStore, ledger, users)

	mail := mailer.NewSMTPSender(mailer.Options{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     envInt("SMTP_PORT", 465),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
	})
	handler := auth.NewHandler(svc, users, mail, os.Getenv("RESET_URL_BASE"))

	r := mux.NewRouter()
	r.HandleFunc("/api/health", healthHandler).Methods("GET")

	public := r.PathPrefix("/api/auth").Subrouter()
	public.HandleFunc("/register", handler.Register).Methods("POST")
	public.HandleFunc("/login", handler.Login).Methods("POST")
	public.HandleFunc("/refresh", handler.Refresh).Methods("POST")
	public.HandleFunc("/logout", handler.Logout).Methods("POST")
	public.HandleFunc("/forgot-password", handler.ForgotPassword).Methods("POST")
	public.HandleFunc("/reset-password", handler.ResetPassword).Methods("POST")

	protected := r.PathPrefix("/api/auth").Subrouter()
	protected.Use(auth.Middleware(svc))
	protected.HandleFunc("/me", handler.Me).Methods("GET")
	protected.HandleFunc("/revoke", handler.RevokeCurrent).Methods("POST")

	go pruneLoop(refreshStore, ledger)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{envStr("FRONTEND_ORIGIN", "http://localhost:5173")},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	})

	addr := ":" + envStr("PORT", "8080")
	log.Info().Str("addr", addr).Msg("server listening")
	log.Fatal().Err(http.ListenAndServe(addr, c.Handler(r))).Msg("server stopped")
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "time": time.Now().UTC()})
}

// pruneLoop garbage-collects expired refresh records and ledger entries.
func pruneLoop(refresh auth.RefreshStore, ledger auth.RevocationLedger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		now := time.Now()
		if n, err := refresh.PruneExpired(ctx, now); err != nil {
			log.Error().Err(err).Msg("refresh prune failed")
		} else if n > 0 {
			log.Info().Int64("count", n).Msg("pruned expired refresh tokens")
		}
		if n, err := ledger.PruneExpired(ctx, now); err != nil {
			log.Error().Err(err).Msg("ledger prune failed")
		} else if n > 0 {
			log.Info().Int64("count", n).Msg("pruned expired revocations")
		}
		cancel()
	}
}

func ledgerCacheTTL() time.Duration {
	if v := os.Getenv("LEDGER_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return 30 * time.Second
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
