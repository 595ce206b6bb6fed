package main

import (
	"context"
	"fmt"
	"os"
)

// stderr receives the process log.
var stderr = os.Stderr

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "ocr-watcher:", err)
		os.Exit(1)
	}
}
