package main

import (
	"os"

	"github.com/JohnPlummer/jp-go-aghpb/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
