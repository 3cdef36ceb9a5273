package main

import (
	"log"

	"github.com/docuquery/docuquery/app"
)

func main() {
	if err := app.SetupAndRunServer(); err != nil {
		log.Fatal(err)
	}
}
