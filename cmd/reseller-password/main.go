// Command reseller-password sets a reseller's dashboard password.
//
//	go run ./cmd/reseller-password -email owner@example.com -password 'S3cret!pass'
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"hotspot-billing.com/platform/internal/config"
	"hotspot-billing.com/platform/pkg/database"
	"hotspot-billing.com/platform/pkg/logger"
)

func main() {
	email := flag.String("email", "", "reseller email")
	password := flag.String("password", "", "new password (min 8 characters)")
	flag.Parse()

	if *email == "" || len(*password) < 8 {
		flag.Usage()
		os.Exit(2)
	}

	godotenv.Load()
	cfg := config.Load()
	log := logger.NewWithLevel(logger.Level(cfg.Log.Level))
	defer log.Sync()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := setPassword(ctx, db, *email, *password)
	if err != nil {
		log.Fatal("Failed to update password", "error", err)
	}
	if n == 0 {
		log.Fatal("Reseller not found", "email", *email)
	}

	log.Info("Password updated", "email", *email)
}

func setPassword(ctx context.Context, db *database.DB, email, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}

	result, err := db.ExecContext(ctx,
		"UPDATE resellers SET password_hash = $1, updated_at = NOW() WHERE email = $2",
		string(hash), email,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update reseller: %w", err)
	}
	return result.RowsAffected()
}
