package main

import (
	"os"

	"github.com/plugctl/plugd/cmd/plugd/cmd"
)

// main hands control to the cobra command tree.
func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
