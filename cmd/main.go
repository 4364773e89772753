// Command battle-service runs the real-time quiz battle engine: the
// websocket server and the schema migration task.
package main

import (
	"os"

	"quiz-battle-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
