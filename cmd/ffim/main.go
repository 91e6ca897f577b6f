// ffim - Ion mobility feature finder
package main

import (
	"fmt"
	"os"

	"github.com/ChrisMcGann/ffim/cmd/ffim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
