package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"quiz-live-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Error().Err(err).Msg("quiz-live exited")
		os.Exit(1)
	}
}
