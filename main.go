package main

import (
	"mining-coordinator/cmd"
	"os"
)

func main() {
	if err := cmd.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
