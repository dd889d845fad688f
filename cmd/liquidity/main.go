package main

import (
	"os"

	"liquidity-hunter/cmd/liquidity/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
