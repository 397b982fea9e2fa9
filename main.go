package main

import "github.com/moderndownloader/bridge/cmd"

func main() {
	cmd.Execute()
}
