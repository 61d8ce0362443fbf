// cmd/meal-scale/main.go
package main

import (
	"os"

	"meal-scale/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
