package main

import (
	"log"
	"os"
	"os/exec"
)

// Runs the pipeline service from cmd/server, forwarding any flags.
func main() {
	args := append([]string{"run", "./cmd/server"}, os.Args[1:]...)
	cmd := exec.Command("go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Run(); err != nil {
		log.Fatalf("health pipeline service exited: %v", err)
	}
}
