package main

import "github.com/bosley/coach/cmd"

func main() {
	cmd.Execute()
}
