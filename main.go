package main

import "github.com/northcutted/pkg-inspector/cmd"

func main() {
	cmd.Execute()
}
