package main

import "github.com/ValentinKolb/refmap/cmd"

func main() {
	cmd.Execute()
}
