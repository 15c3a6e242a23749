package main

import (
	"render-engine/app"
	"render-engine/pkg/observability"
)

func main() {
	observability.StartProfiling("render-engine")
	app.Run()
}
