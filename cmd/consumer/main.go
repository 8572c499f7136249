package main

import (
	"context"
	"os"

	"github.com/ChenBigdata421/jxt-bench/sdk/cli"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/bench"
)

func main() {
	os.Exit(cli.Execute(context.Background(), bench.ConsumerOnly, os.Args[1:], os.Stdout, os.Stderr))
}
