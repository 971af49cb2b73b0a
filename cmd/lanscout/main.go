// Lanscout discovers devices on the local Wi-Fi subnet.
//
// Usage:
//
//	lanscout scan [--config file] [--json] [--output file]
//	lanscout vendor <mac>
//	lanscout version
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"lanscout/internal/logging"
)

// Set at build time with -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	defer logging.Sync()

	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		logging.Error("command failed", zap.Error(err))
		return err
	}
	return nil
}
