package main

import (
	"os"

	"github.com/solana-program/loader-v4/tools/loader-v4/internal/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}
