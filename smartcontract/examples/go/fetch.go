package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/solana-program/loader-v4/smartcontract/sdk/go/loaderv4"
)

func main() {
	url := flag.String("url", rpc.LocalNet_RPC, "RPC endpoint")
	program := flag.String("program", "", "Program account to fetch")
	flag.Parse()

	programPK, err := solana.PublicKeyFromBase58(*program)
	if err != nil {
		log.Fatalf("invalid program %q: %v", *program, err)
	}

	fmt.Println("Fetching program account...")

	client := loaderv4.New(slog.Default(), loaderv4.NewRPCClient(*url, nil), nil, loaderv4.ProgramID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info, err := client.GetProgramAccount(ctx, programPK)
	if err != nil {
		log.Fatalf("error while loading program: %v", err)
	}

	fmt.Printf("Header: %s\n", info.Header)
	fmt.Printf("Payload: %d bytes\n", len(info.Payload))
	fmt.Printf("Balance: %d lamports\n", info.Lamports)
}
