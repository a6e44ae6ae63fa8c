package main

import "pubg-account-watch/internal/cli"

func main() {
	cli.Execute()
}
