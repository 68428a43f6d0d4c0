package main

import (
	"os"

	"github.com/frahmantamala/loan-intake/cmd"
	"github.com/frahmantamala/loan-intake/pkg/logger"
)

func main() {
	logger.Init(os.Getenv("APP_ENV"))
	cmd.Execute()
}
