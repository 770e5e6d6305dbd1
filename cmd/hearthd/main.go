// Command hearthd runs the hearth API server.
package main

import (
	"fmt"
	"os"

	"github.com/pellucid/hearth/cmd/hearthd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
