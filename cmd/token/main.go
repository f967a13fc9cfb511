package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/sahilchouksey/tuition-api/config"
	"github.com/sahilchouksey/tuition-api/model"
	"github.com/sahilchouksey/tuition-api/utils/auth"
)

// Issues an access token for local testing:
//
//	go run ./cmd/token admin 1
func main() {
	if len(os.Args) != 3 {
		fmt.Println("usage: token <student|teacher|admin> <id>")
		os.Exit(2)
	}

	kind, ok := model.ParsePayerKind(os.Args[1])
	if !ok {
		log.Fatalf("unknown role %q", os.Args[1])
	}
	id, err := strconv.ParseUint(os.Args[2], 10, 64)
	if err != nil || id == 0 {
		log.Fatalf("invalid id %q", os.Args[2])
	}

	if err := config.LoadENV(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	env, err := config.Get()
	if err != nil {
		log.Fatalf("Failed to read configuration: %v", err)
	}
	if env.JWT_SECRET == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret: env.JWT_SECRET,
		Expiry: 24 * time.Hour,
		Issuer: env.JWT_ISSUER,
	})
	token, jti, err := jwtManager.GenerateAccessToken(model.PayerIdentity{Kind: kind, ID: uint(id)})
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Printf("payer: %s:%d\njti:   %s\n\n%s\n", kind, id, jti, token)
}
