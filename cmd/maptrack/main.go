package main

import (
	"maptrack/internal/app"
	"maptrack/internal/appshell"
)

func main() { appshell.Main(app.RunContext) }
