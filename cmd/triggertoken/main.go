package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/maheshrc27/postflow/pkg/utils"
)

// triggertoken prints a bearer token the external scheduler can send to the publish route.
func main() {
	trigger := flag.String("trigger", "cron", "name of the caller, stored in the token")
	ttl := flag.Duration("ttl", 365*24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	secret := os.Getenv("JOB_SECRET")
	if secret == "" {
		log.Fatal("JOB_SECRET is not set")
	}

	token, err := utils.GenerateToken(secret, *trigger, *ttl)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
