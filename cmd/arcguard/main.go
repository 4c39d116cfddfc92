// Command arcguard inspects, verifies and safely extracts tar and zip archives.
package main

import (
	"os"

	"github.com/meigma/arcguard/cmd/arcguard/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
