// Command tokengen issues signed development tokens for the API.
//
//	tokengen --user c-42 --email driver@example.org --role collector
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/environmenttech/wastewatch/internal/pkg/auth"
	"github.com/environmenttech/wastewatch/internal/pkg/config"
)

func main() {
	_ = godotenv.Load()

	userID := pflag.StringP("user", "u", "", "subject (user id) of the token")
	email := pflag.StringP("email", "e", "", "e-mail claim")
	role := pflag.StringP("role", "r", string(auth.RoleUser), "role claim: user, collector or admin")
	ttl := pflag.Duration("ttl", 0, "token lifetime (default auth.token_ttl)")
	pflag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: tokengen --user ID [--email ADDR] [--role ROLE] [--ttl DURATION]")
		pflag.PrintDefaults()
		os.Exit(2)
	}

	r, err := auth.ParseRole(*role)
	if err != nil {
		log.Fatalf("role: %v", err)
	}

	cfg, err := config.Load("wastewatch-tokengen")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	svc, err := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, lifetime)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	token, err := svc.Issue(*userID, *email, r)
	if err != nil {
		log.Fatalf("issue: %v", err)
	}
	fmt.Println(token)
}
