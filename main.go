package main

import "github.com/vkravcenko/attendance/cmd"

func main() {
	cmd.Execute()
}
