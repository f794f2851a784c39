package main

import "alphawatch/internal/cli"

func main() {
	cli.Execute()
}
