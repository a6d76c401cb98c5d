package main

import "FlightDelayInsight/src/cli"

func main() {
	cli.Execute()
}
