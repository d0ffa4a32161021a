package main

import "github.com/fianchetto/kibitz/cmd"

func main() {
	cmd.Execute()
}
