// Package main is the entry point for the idflow CLI binary.
package main

import (
	"os"

	cli "idflow/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
