// Command nim-assistant runs the personal task assistant: a chat server,
// background alert checks, and CLI access to every operation.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
