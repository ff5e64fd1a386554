package main

import (
	"os"
)

func main() {
	if err := mainCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
