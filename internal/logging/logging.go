// Package logging configures the global zerolog logger for the daemon.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the zerolog logger with the specified debug mode and output format.
func InitLogger(debug, human bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano                 // always initialize base logger with timestamp.
	base := zerolog.New(os.Stdout).With().Timestamp().Logger() // initialize base logger.
	if human {
		log.Logger = base.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339Nano,
		}) // select output format.
	} else {
		log.Logger = base // use JSON logger.
	}
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel) // set debug level.
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel) // set info level.
	}
}

// LogControlRequest logs a received control request with structured fields.
func LogControlRequest(clientIP, requestID, subcommand, target string) {
	log.Info().
		Str("event", "control_request").
		Str("client_ip", clientIP).
		Str("request_id", requestID).
		Str("subcommand", subcommand).
		Str("target", target).
		Msg("received control request")
}

// LogControlResponse logs the resolution of a control request with structured fields.
func LogControlResponse(clientIP, requestID string, errCode int, duration time.Duration) {
	log.Info().
		Str("event", "control_response").
		Str("client_ip", clientIP).
		Str("request_id", requestID).
		Int("error_code", errCode).
		Str("duration", duration.String()).
		Msg("resolved control request")
}
