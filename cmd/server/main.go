package main

import "github.com/rpattn/entitysync/internal/cli"

func main() {
	cli.Execute()
}
