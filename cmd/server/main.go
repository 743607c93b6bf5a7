package main

import (
	"context"
	"database/sql"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	accounts "github.com/mkcode/go-accounts"
	"github.com/mkcode/go-accounts/middleware/ratelimit"
)

func main() {
	cfg := configFromEnv()

	db, err := openDB(envOr("DATABASE_DSN", "file:accounts.db?cache=shared&mode=rwc&_pragma=foreign_keys(1)"))
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := runMigrations(context.Background(), db); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	repo := accounts.NewRepositoryManager(db)
	repo.MustValidate()

	hasher := accounts.NewBcryptHasher(cfg.GetBcryptCost())
	tokens := accounts.NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg.GetTokenExpiration(),
		cfg.GetIssuer(),
		cfg.GetAudience(),
		nil,
	)

	mailer := accounts.LogMailer{}

	credentials := accounts.NewCredentialStore(repo, hasher, tokens)
	reset := accounts.NewResetCodeManager(repo, hasher, mailer,
		accounts.WithResetCodeTTL(cfg.GetResetCodeExpiration()))
	verification := accounts.NewVerificationManager(repo, hasher, mailer,
		accounts.WithVerificationTTL(cfg.GetVerificationCodeExpiration()))
	activity := accounts.NewStoreActivitySink(repo.ActivityLogs())
	admin := accounts.NewAdminService(repo, hasher, activity)
	guard := accounts.NewGuard(tokens, repo.Users(), nil)

	controller := accounts.NewAccountsController(cfg, credentials, reset, verification, admin, guard, repo.Users())

	app := fiber.New(fiber.Config{
		AppName:      "accounts",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	limiter := ratelimit.NewLocalFixedWindowLimiter()

	api := app.Group("/api", ratelimit.New(ratelimit.Config{
		Tier:    ratelimit.GeneralTier,
		Limiter: limiter,
	}))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "OK",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	controller.RegisterRoutes(api, accounts.RouteMiddleware{
		Auth: []fiber.Handler{ratelimit.New(ratelimit.Config{
			Tier:    ratelimit.AuthTier,
			Limiter: limiter,
		})},
		Reset: []fiber.Handler{ratelimit.New(ratelimit.Config{
			Tier:    ratelimit.ResetTier,
			Limiter: limiter,
		})},
	})

	go func() {
		addr := ":" + envOr("PORT", "8080")
		if err := app.Listen(addr); err != nil {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func configFromEnv() accounts.SimpleConfig {
	return accounts.SimpleConfig{
		SigningKey:                 envOr("JWT_SECRET", "insecure-dev-secret"),
		TokenExpiration:            envDuration("TOKEN_TTL", 0),
		Issuer:                     envOr("JWT_ISSUER", "accounts"),
		BcryptCost:                 envInt("BCRYPT_COST", accounts.DefaultHashingCost),
		ResetCodeExpiration:        envDuration("RESET_CODE_TTL", 0),
		VerificationCodeExpiration: envDuration("VERIFICATION_CODE_TTL", 0),
	}
}

func openDB(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func runMigrations(ctx context.Context, db *bun.DB) error {
	migrations, err := fs.Sub(accounts.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return err
	}

	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := fs.ReadFile(migrations, name)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return err
		}
	}

	return nil
}

func envOr(key, def string) string {
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

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
