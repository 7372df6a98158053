// Command medfaydactl is the operator tool for medfayda: it mints development
// session tokens, applies the database schema and verifies the audit chain.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	exitError = 1
	// exitChainBroken lets scripts tell tampering apart from operational failures.
	exitChainBroken = 3
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, errChainBroken) {
			os.Exit(exitChainBroken)
		}
		os.Exit(exitError)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "medfaydactl",
		Short:        "Operate a medfayda deployment",
		SilenceUsage: true,
	}
	root.AddCommand(newTokenCmd(), newAuditCmd(), newMigrateCmd())
	return root
}

// envOr returns the environment value for key, or def when unset.
func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
