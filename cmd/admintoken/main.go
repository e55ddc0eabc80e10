// cmd/admintoken/main.go
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/keyshop-bot/internal/config"
	"github.com/javajoker/keyshop-bot/internal/utils"
)

// Prints a signed admin bearer token for the ops API. The signing secret
// and default lifetime come from the same environment as the server.
func main() {
	userID := flag.String("user", "", "Discord user ID of the operator")
	name := flag.String("name", "ops", "operator display name")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_ADMIN_TTL)")
	flag.Parse()

	cfg, err := config.LoadJWT()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	if err := utils.ValidateVar(*userID, "required,snowflake"); err != nil {
		fmt.Fprintln(os.Stderr, "-user must be a Discord user ID")
		flag.Usage()
		os.Exit(2)
	}

	lifetime := cfg.AdminTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	utils.SetJWTSecret(cfg.SecretKey)
	token, err := utils.GenerateJWT(*userID, *name, utils.UserTypeAdmin, lifetime)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to sign token")
	}
	fmt.Println(token)
}
