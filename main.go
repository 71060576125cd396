package main

import "github.com/projdex/projdex/cli"

func main() {
	cli.Execute()
}
