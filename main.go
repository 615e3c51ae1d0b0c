// Main entry point for the application
package main

import (
	"slidekiosk/internal/ui"
)

func main() {
	ui.CreateApplication()
}
