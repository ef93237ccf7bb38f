package main

import (
	"github.com/dyike/RightOfWay/internal/cli"
)

func main() {
	cli.Run()
}
