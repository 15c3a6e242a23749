package main

import (
	"render-engine/app"
	"render-engine/pkg/observability"
)

// 纯worker进程：只消费渲染队列，适合与接口进程分开扩容
func main() {
	observability.StartProfiling("render-engine-worker")
	app.RunWorker()
}
