package main

import (
	"os"

	"horse.fit/finnews/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
