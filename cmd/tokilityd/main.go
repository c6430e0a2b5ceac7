package main

import "github.com/tokility/tokilityd/internal/cli"

func main() {
	cli.Execute()
}
