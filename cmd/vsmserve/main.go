package main

import (
	"os"

	"github.com/xupit3r/vsmserve/cmd/vsmserve/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
