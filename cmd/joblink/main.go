// Package main is the joblink entry point.
package main

import "github.com/joblink/joblink-etl/cmd"

func main() {
	cmd.Execute()
}
