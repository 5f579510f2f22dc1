package main

import (
	"os"

	"github.com/leftmike/pax/cmd"
)

func main() {
	if cmd.Execute() != nil {
		os.Exit(1)
	}
}
