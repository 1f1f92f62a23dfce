package main

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func main() {
	app := mustBootstrapGeofenceAPI()

	err := app.Run()
	app.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("geofence-api stopped")
	}
}
