package main

import "github.com/nextlevelbuilder/goclaw-kernel/cmd"

func main() {
	cmd.Execute()
}
