package main

// admintoken prints a bearer token for the admin API.

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/sifrokapp/sifrok/internal/auth"
)

type tokenConfig struct {
	Secret string `env:"ADMIN_TOKEN_SECRET,required"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	email := flag.String("email", "", "admin email, used as the token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *email == "" {
		logger.Error("missing -email")
		flag.Usage()
		os.Exit(2)
	}

	var cfg tokenConfig
	if err := env.Parse(&cfg); err != nil {
		logger.Error("failed to parse config", "error", err)
		os.Exit(1)
	}
	if len(cfg.Secret) < 32 {
		logger.Error("ADMIN_TOKEN_SECRET must be at least 32 characters")
		os.Exit(1)
	}

	token, err := auth.NewIssuer(cfg.Secret).Issue(*email, *email, auth.RoleAdmin, *ttl)
	if err != nil {
		logger.Error("failed to issue token", "error", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
