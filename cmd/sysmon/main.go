package main

import (
	"context"
	"fmt"
	"os"

	"github.com/monify-labs/sysmon/internal/errors"
	"github.com/monify-labs/sysmon/internal/sender"
)

// exitUnauthorized keeps systemd from restarting with a bad token.
const exitUnauthorized = 3

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, sender.ErrUnauthorized) {
			os.Exit(exitUnauthorized)
		}
		os.Exit(1)
	}
}
