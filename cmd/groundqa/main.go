// Command groundqa answers questions strictly from an ingested document
// corpus. It provides a CLI (via Cobra) and an optional HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/groundqa-go/cmd/groundqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
