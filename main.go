package main

import "TrackLens/cmd"

func main() {
	cmd.Execute()
}
