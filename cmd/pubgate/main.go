package main

import (
	"os"

	"github.com/Fzero1925/ai-discovery-sub000/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
