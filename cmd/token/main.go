package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"stocktrigger/configs"
	custommiddleware "stocktrigger/internal/middleware"
)

// Issues an API token signed with the configured JWT_SECRET.
func main() {
	ownerFlag := flag.String("owner", "", "Owner ID the token acts for (random when empty)")
	admin := flag.Bool("admin", false, "Grant the ADMIN role")
	flag.Parse()

	cfg, err := configs.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	auth := custommiddleware.NewAuthenticator(cfg.Auth.JWTSecret)
	if !auth.Enabled() {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set; the API accepts unauthenticated requests")
		os.Exit(1)
	}

	ownerID := uuid.New()
	if *ownerFlag != "" {
		if ownerID, err = uuid.Parse(*ownerFlag); err != nil {
			fmt.Fprintf(os.Stderr, "invalid owner id: %v\n", err)
			os.Exit(1)
		}
	}

	role := "USER"
	if *admin {
		role = custommiddleware.RoleAdmin
	}

	token, err := auth.GenerateJWT(ownerID, role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
