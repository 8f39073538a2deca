package main

import (
	"context"
	"os"

	"github.com/relman-dev/relman/pkg/cli"
)

func main() {
	if err := cli.Run(context.Background(), os.Args); err != nil {
		os.Exit(1)
	}
}
