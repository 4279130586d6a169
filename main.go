package main

import (
	"os"

	"github.com/flowmail/flowmail/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
