package main

import (
	"slidekiosk/internal/ui"
)

func main() {
	ui.CreateApplication()
}
