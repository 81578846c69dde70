package main

import (
	"os"

	"github.com/ragpipe/ragpipe/cmd/ragpipe"
)

var version = "dev"

func main() {
	ragpipe.SetVersion(version)
	if err := ragpipe.Execute(); err != nil {
		os.Exit(1)
	}
}
