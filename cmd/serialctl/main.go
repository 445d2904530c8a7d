package main

import (
	"log"

	"github.com/luhtfiimanal/go-serial-manager/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatal(err)
	}
}
