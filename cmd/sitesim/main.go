// Command sitesim drives a running minesafe service: it replays scenarios of
// sensor readings and vehicle moves, and tails live tracking streams.
package main

func main() {
	Execute()
}
