// mm-core is the Memory Monster background daemon. It owns license and
// entitlement state, the daily scan quota, online verification, and the
// update reminder cycle; the desktop renderer consumes it over local HTTP
// and websocket.
package main

import (
	"context"
	"fmt"
	"os"

	"mmcore/internal/app"
)

func main() {
	application, err := app.NewApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start mm-core: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		application.Logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
}
