package main

import "github.com/notargets/blackoil/cmd"

func main() {
	cmd.Execute()
}
