package main

import (
	"os"

	"pyscan/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
