package api

import (
	"expvar"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
)

// counters are published once per process under "echoes" at /debug/vars.
var counters = expvar.NewMap("echoes")

const (
	counterMessages  = "messages_accepted"
	counterDrains    = "drains"
	counterPublishes = "publishes"
	counterErrors    = "lifecycle_errors"
)

func mountDebug(app *fiber.App) {
	app.Get("/debug/vars", adaptor.HTTPHandler(expvar.Handler()))
}

func count(name string) {
	counters.Add(name, 1)
}
