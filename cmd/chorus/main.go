package main

import (
	"fmt"
	"os"

	"chorus/internal/exitcode"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if exitcode.Code(err) != exitcode.Cancelled {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(exitcode.Code(err))
	}
}
