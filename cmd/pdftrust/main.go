package main

import "github.com/digitorus/pdftrust/cli"

func main() {
	cli.Execute(cli.NewRootCommand())
}
