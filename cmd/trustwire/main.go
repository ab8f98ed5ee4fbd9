package main

import (
	"os"

	"horse.fit/trustwire/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
