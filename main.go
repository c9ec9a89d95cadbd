package main

import "github.com/kbuckham/reflowctl/internal/cli"

func main() {
	cli.Execute()
}
