package main

import (
	"os"

	"github.com/hildam/deep-dive-go/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
