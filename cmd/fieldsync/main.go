package main

import (
	"os"

	"github.com/angelmondragon/fieldsync/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
