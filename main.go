package main

import "github.com/frahmantamala/pocket-settlement/cmd"

func main() {
	cmd.Execute()
}
