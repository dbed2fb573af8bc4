// Command devstore runs a SQLite-backed stand-in for the store of record,
// for local development and manual testing. It can also mint a session
// token so a local server has something to authenticate with.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/divvyup/ledger/internal/auth"
	"github.com/divvyup/ledger/internal/remote/remotetest"
	"github.com/divvyup/ledger/pkg/logging"
)

func main() {
	var (
		addr      = flag.String("addr", ":9090", "listen address")
		dbPath    = flag.String("db", "./data/devstore.db", "SQLite database path")
		mintToken = flag.Bool("mint-token", false, "print a dev session token and exit (requires JWT_SECRET)")
	)
	flag.Parse()

	_ = godotenv.Load()
	logging.Setup()

	if *mintToken {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			slog.Error("JWT_SECRET is required to mint a token")
			os.Exit(1)
		}
		token, err := auth.NewJWTManager(secret, 24*time.Hour).Generate("dev-user", "dev@localhost")
		if err != nil {
			slog.Error("Failed to mint token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	srv, err := remotetest.New(*dbPath)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	slog.Info("Dev store listening", "address", *addr, "database", *dbPath)
	if err := http.ListenAndServe(*addr, srv.Handler()); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
