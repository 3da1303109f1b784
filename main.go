package main

import "github.com/sigvaldr/tacklebox/cmd"

func main() {
	cmd.Execute()
}
