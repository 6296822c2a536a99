package main

import (
	"os"

	"github.com/vkngwrapper/buddy/cmd/buddyctl/command"
)

func main() {
	err := command.NewCommandline().Root().Execute()
	if err != nil {
		os.Exit(1)
	}
}
