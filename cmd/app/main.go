package main

import (
	"github.com/humanbelnik/towerduels/internal/app"
	"github.com/humanbelnik/towerduels/internal/config"
)

func main() {
	app.Go(config.Load())
}
