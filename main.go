package main

import (
	"github.com/arcward/greybot/cmd"
)

func main() {
	cmd.Execute()
}
