package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/akhtararif14-hash/campusly/internal/crypto"
)

func main() {
	size := flag.Int("bytes", 32, "Number of random bytes")
	flag.Parse()

	secret, err := crypto.NewSecret(*size)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("JWT_SECRET=%s\n", secret)
}
