package main

import "github.com/ValentinKolb/iKV/cmd"

func main() {
	cmd.Execute()
}
