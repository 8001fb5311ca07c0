// docsyncd runs the sync engine as a long-lived process: it keeps a local
// SQLite document store reconciled with a remote document server on behalf
// of one owner. The serve subcommand runs an in-memory remote server for
// development setups.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
