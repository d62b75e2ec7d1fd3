package main

import "github.com/nextlevelbuilder/auraxis/cmd"

func main() {
	cmd.Execute()
}
