package main

import (
	"fmt"
	"os"

	"github.com/sandeepkv93/medremind/internal/cli"
)

func main() {
	if err := cli.New().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "medremind failed: %v\n", err)
		os.Exit(1)
	}
}
