package main

import (
	"fmt"
	"os"

	"github.com/lazypower/atomspace/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "atomspace: %v\n", err)
		os.Exit(1)
	}
}
