package logging

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Setup configures the global logrus logger: text output in dev, JSON otherwise.
func Setup(appEnv, level string) {
	if appEnv == "dev" {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}
	log.SetOutput(os.Stdout)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
		log.WithField("level", level).Warn("Unknown LOG_LEVEL, falling back to info")
	}
	log.SetLevel(lvl)
}
