package main

import (
	"fmt"
	"os"
)

// command line util that inspects and exercises bandwidth policy tables
func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
