package main

import "github.com/vietddude/replayer/internal/cli"

func main() {
	cli.Execute()
}
