package ui

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"slidekiosk/internal/playback"
)

// showEndDialog offers the end-of-sequence choices for a non-looping
// presentation. On assigned devices the engine resolves unattended kiosks by
// itself after a few seconds; this dialog only matters when someone is
// holding the remote.
func (a *App) showEndDialog() {
	sess := a.manager.Current()
	if sess == nil {
		return
	}

	var d dialog.Dialog
	choose := func(choice playback.EndChoice) func() {
		return func() {
			sess.Engine.ResolveEnd(choice)
			d.Hide()
		}
	}

	restart := widget.NewButton("Play again", choose(playback.EndRestart))
	loop := widget.NewButton("Loop from now on", choose(playback.EndLoop))
	exit := widget.NewButton("Exit", choose(playback.EndExit))

	d = dialog.NewCustomWithoutButtons("End of presentation",
		container.NewVBox(
			widget.NewLabel("The presentation has finished."),
			restart, loop, exit,
		), a.MainWin)
	d.Resize(fyne.NewSize(360, 240))
	d.Show()
}

// showLoadFailureDialog offers retry or exit when the presentation itself
// could not be loaded.
func (a *App) showLoadFailureDialog(presentationID string, err error) {
	dialog.ShowCustomConfirm("Load failed",
		"Retry", "Exit",
		widget.NewLabel(fmt.Sprintf("Could not load presentation %s:\n%v", presentationID, err)),
		func(retry bool) {
			if retry {
				go a.startPlayback(presentationID)
				return
			}
			a.app.Quit()
		}, a.MainWin)
}
