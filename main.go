package main

import (
	"os"

	"github.com/rileyhales/hydrologic-bias-correction/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
