package main

import "github.com/berth-dev/skiff/internal/cli"

func main() {
	cli.Execute()
}
