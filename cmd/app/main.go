package main

import (
	"github.com/scrumdeck/core/internal/app"
	"github.com/scrumdeck/core/internal/config"
)

func main() {
	app.Go(config.Load())
}
