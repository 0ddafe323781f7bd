// walletd is the custodial wallet JSON-RPC server.
// Usage: walletd serve | walletd login encrypt <login> | walletd login decrypt <hex>
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "walletd",
		Short:         "Custodial Ethereum wallet backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newLoginCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
