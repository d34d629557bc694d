// Entrypoint that delegates to the cobra root command in cmd/run.go.

package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/izwi-audio/izwi-core/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
