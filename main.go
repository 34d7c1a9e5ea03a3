package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"cgcheck/command"
)

func main() {
	if err := command.NewApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
