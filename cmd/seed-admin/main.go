// seed-admin creates the first privileged account when none exists, after
// running migrations so the reserved rows are in place.
//
// Usage (from backend directory):
//
//	DB_DRIVER=mysql DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/seed-admin -login admin -password secret
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/stockroom_backend/config"
	"github.com/mmdatafocus/stockroom_backend/models"
)

func main() {
	login := flag.String("login", os.Getenv("ADMIN_LOGIN"), "Login of the privileged account (default $ADMIN_LOGIN)")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "Password of the privileged account (default $ADMIN_PASSWORD)")
	flag.Parse()

	if strings.TrimSpace(*login) == "" || strings.TrimSpace(*password) == "" {
		fmt.Fprintln(os.Stderr, "-login and -password are required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	if err := models.MigrateTable(db); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}

	admin, created, err := models.EnsureAdminAccount(db, *login, *password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed admin account: %v\n", err)
		os.Exit(1)
	}
	if !created {
		fmt.Println("A privileged account already exists; nothing to do")
		return
	}
	fmt.Printf("Created privileged account: id=%d login=%q\n", admin.ID, admin.Login)
}
