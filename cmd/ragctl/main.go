package main

import "github.com/kailas-cloud/ragdex/internal/cli"

func main() {
	cli.Execute()
}
