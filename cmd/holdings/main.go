// Command holdings dumps the holdings state file for operator inspection.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"solana-copy-trader/internal/holdings"
)

func main() {
	file := flag.String("file", "holdings.json", "Holdings state file")
	flag.Parse()

	logger := log.New(os.Stderr, "[holdings] ", log.LstdFlags)

	store := holdings.NewFileStore(*file, logger)
	ctx := context.Background()
	if err := store.Load(ctx); err != nil {
		logger.Fatalf("load %s: %v", *file, err)
	}

	list, err := store.All(ctx)
	if err != nil {
		logger.Fatalf("read holdings: %v", err)
	}

	if len(list) == 0 {
		fmt.Println("no holdings")
		return
	}

	fmt.Printf("%-45s %20s %9s %20s %s\n", "MINT", "AMOUNT", "DECIMALS", "TARGET", "LAST CHECKED")
	for _, h := range list {
		checked := "-"
		if h.LastChecked > 0 {
			checked = time.UnixMilli(h.LastChecked).UTC().Format(time.RFC3339)
		}
		fmt.Printf("%-45s %20.6f %9d %20.6f %s\n", h.Mint, h.Amount, h.Decimals, h.TargetAmount, checked)
	}
}
