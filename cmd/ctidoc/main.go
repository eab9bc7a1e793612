package main

import (
	"os"

	"github.com/telhawk-systems/ctidoc/internal/commands"
)

func main() {
	os.Exit(commands.Execute())
}
