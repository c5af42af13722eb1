package main

import (
	"os"

	"github.com/MeKo-Tech/ocrnlp/cmd/ocr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
