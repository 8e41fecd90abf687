// Package main runs the completion race reproduction: events are fanned out on a worker pool, summed, and the
// program waits for every stream to complete before printing the duration.
package main

import (
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
