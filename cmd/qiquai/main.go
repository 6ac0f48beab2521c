package main

import "qi-quai-rates/internal/cli"

func main() {
	cli.Execute()
}
