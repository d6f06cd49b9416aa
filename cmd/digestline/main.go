package main

import (
	"digestline/cmd/cmd"
	"digestline/internal/logger"
)

func main() {
	logger.Init()
	cmd.Execute()
}
