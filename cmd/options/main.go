// Command options is the options analytics CLI and HTTP server.
package main

import (
	"context"
	"fmt"
	"os"

	"options-analytics/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
