package main

import "github.com/ringline/console/cmd/consolectl/cmd"

func main() {
	cmd.Execute()
}
