package main

import (
	"os"

	cogniweavecmder "github.com/papercomputeco/cogniweave/cmd/cogniweave"
)

func main() {
	cmd := cogniweavecmder.NewCogniweaveCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
