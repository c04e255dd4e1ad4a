package main

import "github.com/mcoot/relsync/internal/cli"

func main() {
	cli.Execute()
}
