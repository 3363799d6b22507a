package main

import (
	"os"

	"github.com/slmtnm/cloudisk/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
