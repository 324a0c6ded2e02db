// Package main is the entry point for the valmetrics CLI, which ingests
// Valorant scoreboard screenshots and serves per-cohort player and map stats.
package main

import "github.com/pable/go-val-metrics/cmd"

func main() {
	cmd.Execute()
}
