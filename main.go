package main

import "github.com/lukewaehner/KijayKolder-LinksHub/cmd"

func main() {
	cmd.Execute()
}
