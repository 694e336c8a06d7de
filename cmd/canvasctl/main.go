// Command canvasctl drives the canvas backend from the command line. Every
// command builds the container, runs one operation, saves any open session
// and prints the result as JSON.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "canvasctl:", err)
		os.Exit(1)
	}
}
