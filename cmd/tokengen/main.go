// Generates an admin token and the bcrypt hash to configure as
// ADMIN_TOKEN_HASH. With -prompt, hashes a token you type instead of
// generating one.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

func main() {
	prompt := flag.Bool("prompt", false, "read the token from the terminal instead of generating one")
	flag.Parse()

	var token string
	if *prompt {
		fmt.Fprint(os.Stderr, "Token: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			log.Fatalf("read token: %v", err)
		}
		if len(raw) == 0 {
			log.Fatal("token must not be empty")
		}
		token = string(raw)
	} else {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			log.Fatal(err)
		}
		token = hex.EncodeToString(b)
		fmt.Printf("Token:            %s\n", token)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash token: %v", err)
	}
	fmt.Printf("ADMIN_TOKEN_HASH: %s\n", hash)
}
