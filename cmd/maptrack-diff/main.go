package main

import (
	"maptrack/internal/appshell"
	"maptrack/internal/diffapp"
)

func main() { appshell.Main(diffapp.RunContext) }
