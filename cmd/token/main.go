package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/akhtararif14-hash/campusly/internal/auth"
)

func main() {
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "Signing secret (defaults to $JWT_SECRET)")
	userID := flag.String("user", "", "User ID to issue the token for")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *secret == "" || *userID == "" {
		fmt.Fprintln(os.Stderr, "Usage: token -user <user-id> [-secret <secret>] [-ttl 24h]")
		fmt.Fprintln(os.Stderr, "  Reads the secret from JWT_SECRET if -secret is not specified")
		os.Exit(1)
	}

	token, err := auth.NewVerifier(*secret).Issue(*userID, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Authorization: Bearer %s\n", token)
}
