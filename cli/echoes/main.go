package main

import (
	"os"

	echoescmder "github.com/papercomputeco/echoes/cmd/echoes"
)

func main() {
	cmd := echoescmder.NewEchoesCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
