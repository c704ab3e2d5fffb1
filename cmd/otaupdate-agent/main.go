package main

import (
	"os"

	"github.com/cloupeer-io/otaupdate/cmd/otaupdate-agent/app"
)

func main() {
	if err := app.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
