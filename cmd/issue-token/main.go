// Command issue-token signs the pre-issued credentials candidates and
// proctors present to the session engine.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/service"
	"golang.org/x/term"
)

func main() {
	var (
		tokenType   string
		userID      int64
		permissions string
		askSecret   bool
	)
	flag.StringVar(&tokenType, "type", string(service.TokenTypeCandidate), "Token type: candidate or proctor")
	flag.Int64Var(&userID, "user", 0, "Candidate or proctor ID")
	flag.StringVar(&permissions, "perms", service.PermissionMonitorRead, "Comma-separated permissions (proctor only)")
	flag.BoolVar(&askSecret, "ask-secret", false, "Read the signing secret from the terminal instead of JWT_SECRET")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, "issue-token")

	// ─── CLI Input ─────────────────────────────────────────────────────
	if userID <= 0 {
		fmt.Fprint(os.Stderr, "Enter User ID: ")
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		if _, err := fmt.Sscan(strings.TrimSpace(line), &userID); err != nil || userID <= 0 {
			fmt.Fprintln(os.Stderr, "Error: User ID must be a positive number")
			os.Exit(1)
		}
	}

	if askSecret {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -ask-secret needs an interactive terminal")
			os.Exit(1)
		}
		fmt.Fprint(os.Stderr, "Enter Signing Secret: ")
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil || len(secret) == 0 {
			fmt.Fprintln(os.Stderr, "Error reading secret")
			os.Exit(1)
		}
		cfg.JWTSecret = string(secret)
	}

	var perms []string
	if service.TokenType(tokenType) == service.TokenTypeProctor {
		for _, p := range strings.Split(permissions, ",") {
			if p = strings.TrimSpace(p); p != "" {
				perms = append(perms, p)
			}
		}
	}

	token, err := service.NewAuthService(cfg).GenerateToken(service.TokenType(tokenType), userID, perms)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}

	log.Info().
		Str("type", tokenType).
		Int64("user_id", userID).
		Strs("permissions", perms).
		Dur("expires_in", cfg.JWTExpiry).
		Msg("Token issued")
	fmt.Println(token)
}
