package main

import (
	"github.com/dockpage/dockpage/cmd"
)

func main() {
	cmd.Execute()
}
