package main

import (
	"github.com/cadenzalabs/ensemble/internal/cli"
)

func main() {
	cli.Execute()
}
