package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/coop_backend/utils"
)

// Ops tool: sign an API token for a back-office user. Useful for smoke tests
// and for wiring up schedulers that call the HTTP API. Honors API_SECRET and
// TOKEN_HOUR_LIFESPAN like the server does.
func main() {
	userID := flag.Int("user-id", 0, "User id to embed in the token.")
	storeID := flag.String("store-id", "", "Store the token is scoped to.")
	name := flag.String("name", "", "Display name for the token holder.")
	role := flag.String("role", "staff", "Role claim (staff, manager, admin).")
	flag.Parse()

	if *userID <= 0 || strings.TrimSpace(*storeID) == "" {
		fmt.Fprintln(os.Stderr, "usage: issue-token -user-id N -store-id STORE [-name NAME] [-role ROLE]")
		os.Exit(2)
	}

	token, err := utils.JwtGenerate(*userID, *storeID, *name, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
