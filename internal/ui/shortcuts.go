// Package ui  Shortcuts for keyboard and remote-control actions.
package ui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"

	"slidekiosk/internal/playback"
)

func (a *App) buildKeyboardShortcuts() {
	// ctrl+q to quit application
	a.MainWin.Canvas().AddShortcut(&desktop.CustomShortcut{
		KeyName:  fyne.KeyQ,
		Modifier: fyne.KeyModifierControl,
	}, func(_ fyne.Shortcut) { a.onExit() })

	// Fire TV remote keys arrive as plain key events. Both the remote and a
	// local keyboard drive the engine through the same command set as the
	// backend.
	a.MainWin.Canvas().SetOnTypedKey(func(key *fyne.KeyEvent) {
		sess := a.manager.Current()
		if sess == nil {
			return
		}
		switch key.Name {
		case fyne.KeyRight:
			sess.Engine.Apply(playback.Command{Type: playback.CommandNextSlide})
		case fyne.KeyLeft:
			sess.Engine.Apply(playback.Command{Type: playback.CommandPrevSlide})
		case fyne.KeyP, fyne.KeySpace, fyne.KeyEnter, fyne.KeyReturn:
			sess.Engine.TogglePlay()
		case fyne.KeyHome:
			sess.Engine.Apply(playback.Command{Type: playback.CommandRestart})
		case fyne.KeyQ:
			sess.Engine.Apply(playback.Command{Type: playback.CommandStop})
		case fyne.KeyEscape:
			// close dialogs with esc key, otherwise leave playback
			if len(a.MainWin.Canvas().Overlays().List()) > 0 {
				a.MainWin.Canvas().Overlays().Top().Hide()
				return
			}
			sess.Engine.Apply(playback.Command{Type: playback.CommandStop})
		}
	})
}
