package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/dl-alexandre/odshare/internal/cli"
)

func main() {
	// .env is optional; ODSHARE_* variables may come from the environment alone
	_ = godotenv.Load()

	os.Exit(cli.Execute())
}
