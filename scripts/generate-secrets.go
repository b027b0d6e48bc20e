// Package main is a development utility for generating the two secrets
// Formgate needs at startup: the HMAC signing secret for link tokens and the
// service key for the /api/v1 admin surface. It prints ready-to-export env
// vars so developers can get a local instance running without inventing
// secrets by hand. Do not reuse generated values across environments — each
// deployment should carry its own pair.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
)

func randomString(bytes int) string {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		log.Fatal(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func main() {
	signingSecret := randomString(32)
	serviceKey := fmt.Sprintf("fgk_%s", randomString(32))

	fmt.Println("==========================================================")
	fmt.Println("Formgate Secrets Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nexport FG_AUTH_SIGNING_SECRET=%s\n", signingSecret)
	fmt.Printf("export FG_AUTH_SERVICE_KEY=%s\n", serviceKey)
	fmt.Println("\n==========================================================")
	fmt.Printf("Admin Authorization Header: Bearer %s\n", serviceKey)
	fmt.Println("==========================================================")
}
