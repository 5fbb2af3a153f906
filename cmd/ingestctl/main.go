// file: cmd/ingestctl/main.go

package main

import (
	"ClickFlow/internal/cli"
	"os"
)

func main() {
	os.Exit(cli.Execute())
}
