package main

import "github.com/nextlevelbuilder/devagent/cmd"

func main() {
	cmd.Execute()
}
