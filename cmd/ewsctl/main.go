package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(dialEngine).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
