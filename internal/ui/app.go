// Package ui  Setup for the SlideKiosk application window and playback wiring.
package ui

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"slidekiosk/internal/catalog"
	"slidekiosk/internal/diag"
	"slidekiosk/internal/lifecycle"
	"slidekiosk/internal/playback"
	"slidekiosk/internal/session"
	"slidekiosk/internal/store"
)

// Command-line flags
var (
	serverFlag       = flag.String("server", "http://localhost:8080", "Content service base URL.")
	presentationFlag = flag.String("presentation", "", "Presentation ID to play. Empty uses the device's assignment.")
	deviceNameFlag   = flag.String("device-name", "", "Display name used when registering a new device.")
	dbDirFlag        = flag.String("db-dir", "", "Directory for the device identity database. Empty uses the user config dir.")
	cacheDirFlag     = flag.String("cache-dir", "", "Directory for the image cache. Empty uses a temp dir.")
	loopFlag         = flag.Bool("loop", true, "Loop the presentation instead of stopping at the last slide.")
	autoPlayFlag     = flag.Bool("autoplay", true, "Start playing after load without waiting for input.")
	pollFlag         = flag.Duration("poll-interval", 3*time.Second, "Remote command poll interval.")
	diagAddrFlag     = flag.String("diag-addr", "127.0.0.1:8712", "Diagnostics listen address. Empty disables.")
	debugFlag        = flag.Bool("debug", false, "Enable debug logging.")
)

// App represents the kiosk application with its window, widgets and the
// playback session behind them.
type App struct {
	app fyne.App
	log zerolog.Logger

	MainWin fyne.Window
	image   *canvas.Image
	status  *widget.Label

	manager *session.Manager
	store   *store.DeviceStore
	render  *renderer
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()
}

// CreateApplication is the GUI entrypoint.
func CreateApplication() {
	flag.Parse()
	log := newLogger(*debugFlag)

	cacheDir := *cacheDirFlag
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "slidekiosk-cache")
	}

	db, err := store.Open(*dbDirFlag, log)
	if err != nil {
		log.Fatal().Err(err).Msg("opening device store")
	}
	defer db.Close()

	fyneApp := app.NewWithID("io.slidekiosk.player")
	ui := &App{app: fyneApp, log: log}
	ui.MainWin = fyneApp.NewWindow("SlideKiosk")

	identity, err := ensureIdentity(db, *serverFlag, *deviceNameFlag, log)
	if err != nil {
		log.Fatal().Err(err).Msg("registering device")
	}

	assigned := *presentationFlag == ""
	presentationID := *presentationFlag
	if presentationID == "" {
		presentationID = identity.PresentationID
	}
	if presentationID == "" {
		log.Fatal().Msg("no presentation assigned and none given with -presentation")
	}

	ui.manager = session.NewManager(session.Config{
		ServerURL:    *serverFlag,
		DeviceID:     identity.DeviceID,
		CacheDir:     cacheDir,
		AutoPlay:     *autoPlayFlag,
		Loop:         *loopFlag,
		Assigned:     assigned,
		PollInterval: *pollFlag,
	}, lifecycle.NopWake{}, clockwork.NewRealClock(), log,
		ui.onSnapshot, ui.onSequenceEnd, ui.onExit)

	ui.MainWin.SetContent(ui.buildMainUI())
	ui.buildKeyboardShortcuts()
	ui.MainWin.SetCloseIntercept(func() {
		ui.manager.StopCurrent()
		ui.MainWin.Close()
	})

	if *diagAddrFlag != "" {
		diagSrv := diag.NewServer(*diagAddrFlag, func() (playback.Snapshot, bool) {
			sess := ui.manager.Current()
			if sess == nil {
				return playback.Snapshot{}, false
			}
			return sess.Engine.Snapshot(), true
		}, log)
		diagSrv.Start()
		defer diagSrv.Close()
	}

	go ui.startPlayback(presentationID)
	defer ui.manager.StopCurrent()

	ui.MainWin.CenterOnScreen()
	ui.MainWin.SetFullScreen(true)
	ui.MainWin.ShowAndRun()
}

// startPlayback loads the presentation and wires the renderer. A load
// failure offers retry or exit instead of leaving a blank screen up.
func (a *App) startPlayback(presentationID string) {
	sess, err := a.manager.Start(context.Background(), presentationID)
	if err != nil {
		a.log.Error().Err(err).Str("presentation", presentationID).Msg("load failed")
		fyne.Do(func() { a.showLoadFailureDialog(presentationID, err) })
		return
	}
	fyne.Do(func() {
		a.render = newRenderer(a, sess)
		a.render.apply(sess.Engine.Snapshot())
	})
}

// ensureIdentity loads the saved device identity, registering with the
// backend on first run.
func ensureIdentity(db *store.DeviceStore, serverURL, name string, log zerolog.Logger) (store.Identity, error) {
	identity, err := db.Load()
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, store.ErrNoIdentity) {
		return store.Identity{}, err
	}

	if name == "" {
		host, _ := os.Hostname()
		name = host
	}
	client := catalog.NewClient(serverURL, 0, log)
	dev, err := client.RegisterDevice(context.Background(), name)
	if err != nil {
		return store.Identity{}, err
	}
	identity = store.Identity{
		DeviceID:       dev.ID,
		Name:           dev.Name,
		RegisteredAt:   time.Now().UTC(),
		PresentationID: dev.PresentationID,
	}
	if err := db.Save(identity); err != nil {
		return store.Identity{}, err
	}
	return identity, nil
}

func (a *App) buildMainUI() fyne.CanvasObject {
	a.MainWin.SetMaster()

	a.image = &canvas.Image{}
	a.image.FillMode = canvas.ImageFillContain
	a.status = widget.NewLabel("Loading...")

	tappable := newTappableImage(a.image, func() {
		if sess := a.manager.Current(); sess != nil {
			sess.Engine.TogglePlay()
		}
	})

	return container.NewBorder(nil, a.status, nil, nil, tappable)
}

// onSnapshot runs on every engine state change and repaints on the fyne
// thread.
func (a *App) onSnapshot(snap playback.Snapshot) {
	fyne.Do(func() {
		if a.render != nil {
			a.render.apply(snap)
		}
	})
}

func (a *App) onSequenceEnd() {
	fyne.Do(func() { a.showEndDialog() })
}

func (a *App) onExit() {
	fyne.Do(func() {
		a.manager.StopCurrent()
		a.app.Quit()
	})
}

func (a *App) setStatus(format string, args ...any) {
	a.status.SetText(fmt.Sprintf(format, args...))
}
