package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/stemsi/exam-runner/internal/config"
	"github.com/stemsi/exam-runner/internal/logger"
	"github.com/stemsi/exam-runner/internal/service"
)

// issue-token mints a bearer token for local testing against the runner and
// the exam backend, which share JWT_SECRET.
func main() {
	var (
		userID int
		ttl    time.Duration
		prompt bool
	)
	flag.IntVar(&userID, "user", 0, "User ID to embed in the token")
	flag.DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	flag.BoolVar(&prompt, "prompt", false, "Read the signing secret from the terminal instead of JWT_SECRET")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if userID <= 0 {
		fmt.Fprintln(os.Stderr, "Usage: issue-token -user <id> [-ttl 12h] [-prompt]")
		os.Exit(2)
	}

	secret := cfg.JWTSecret
	if prompt || os.Getenv("JWT_SECRET") == "" {
		fmt.Fprint(os.Stderr, "Enter JWT secret: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read secret")
		}
		secret = strings.TrimSpace(string(raw))
		if secret == "" {
			log.Fatal().Msg("Secret is required")
		}
	}

	token, err := service.NewAuthService(secret).GenerateToken(userID, ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	log.Info().Int("user_id", userID).Dur("ttl", ttl).Msg("Token issued")
	fmt.Println(token)
}
