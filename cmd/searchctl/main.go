// Command searchctl queries a catalog file with the ranking engine from the
// command line. See `searchctl --help`.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/cli"
)

func main() {
	if err := cli.NewRootCommand(os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
