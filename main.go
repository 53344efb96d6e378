package main

import "github.com/jake-scott/hon-client/cmd"

func main() {
	cmd.Execute()
}
