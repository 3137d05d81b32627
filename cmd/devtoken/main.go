// Command devtoken mints an access token accepted by the server, for local
// testing against a deployment without an identity provider.
//
//	go run ./cmd/devtoken -user alice -role RESEARCHER
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/lab-equipment-reservation/internal/config"
	"github.com/iliyamo/lab-equipment-reservation/internal/utils"
)

func main() {
	_ = godotenv.Load()

	user := flag.String("user", "", "subject (user id) of the token")
	role := flag.String("role", utils.RoleResearcher, "RESEARCHER or LAB_MANAGER")
	flag.Parse()
	if *user == "" {
		log.Fatal("-user is required")
	}
	if *role != utils.RoleResearcher && *role != utils.RoleLabManager {
		log.Fatalf("unknown role %q", *role)
	}

	cfg := config.Load(config.StoreMemory)
	tok, err := utils.NewAccessToken(cfg.JWTSecret, *user, *role, time.Duration(cfg.AccessTTLMin)*time.Minute)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(tok.Token)
}
