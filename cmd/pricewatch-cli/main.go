package main

import "pricewatch/cmd/pricewatch-cli/cmd"

func main() {
	cmd.Execute()
}
