package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"slidekiosk/internal/catalog"
	"slidekiosk/internal/store"
)

var (
	serverFlag string
	dbDirFlag  string
)

// NewRootCmd creates the root command for the CLI. The catalog client and
// device store are built per run from the flags so tests can point both at
// throwaway backends and directories.
func NewRootCmd() *cobra.Command {
	var client *catalog.Client

	rootCmd := &cobra.Command{
		Use:   "slidekiosk-cli",
		Short: "SlideKiosk CLI - manage kiosk registration and presentations",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			client = catalog.NewClient(serverFlag, 10*time.Second, zerolog.Nop())
		},
	}

	presentationsCmd := &cobra.Command{
		Use:   "presentations",
		Short: "List published presentations",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := client.ListPresentations(context.Background())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				cmd.Println("No presentations published.")
				return nil
			}
			for _, p := range list {
				cmd.Printf("%s  %s (%d slides)\n", p.ID, p.Name, p.SlideCount)
			}
			return nil
		},
	}
	rootCmd.AddCommand(presentationsCmd)

	showCmd := &cobra.Command{
		Use:   "presentation [id]",
		Short: "Show the slide sequence of one presentation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pres, err := client.LoadPresentation(context.Background(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("%s: %s\n", pres.ID, pres.Name)
			for i, s := range pres.Slides {
				cmd.Printf("  %2d. %s  %s (%s)\n", i+1, s.ID, s.ImageURL, s.Duration())
			}
			return nil
		},
	}
	rootCmd.AddCommand(showCmd)

	registerCmd := &cobra.Command{
		Use:   "register [name]",
		Short: "Register this device with the content service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(dbDirFlag, zerolog.Nop())
			if err != nil {
				return err
			}
			defer db.Close()

			dev, err := client.RegisterDevice(context.Background(), args[0])
			if err != nil {
				return err
			}
			identity := store.Identity{
				DeviceID:       dev.ID,
				Name:           dev.Name,
				RegisteredAt:   time.Now().UTC(),
				PresentationID: dev.PresentationID,
			}
			if err := db.Save(identity); err != nil {
				return err
			}
			cmd.Printf("Registered device %s as '%s'\n", dev.ID, dev.Name)
			return nil
		},
	}
	rootCmd.AddCommand(registerCmd)

	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Show the locally saved device identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(dbDirFlag, zerolog.Nop())
			if err != nil {
				return err
			}
			defer db.Close()

			identity, err := db.Load()
			if err != nil {
				return err
			}
			cmd.Printf("Device:       %s\n", identity.DeviceID)
			cmd.Printf("Name:         %s\n", identity.Name)
			cmd.Printf("Registered:   %s\n", identity.RegisteredAt.Format(time.RFC3339))
			if identity.PresentationID != "" {
				cmd.Printf("Presentation: %s\n", identity.PresentationID)
			}
			return nil
		},
	}
	rootCmd.AddCommand(deviceCmd)

	assignCmd := &cobra.Command{
		Use:   "assign [presentation-id]",
		Short: "Remember a presentation assignment locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(dbDirFlag, zerolog.Nop())
			if err != nil {
				return err
			}
			defer db.Close()

			if _, err := client.LoadPresentation(context.Background(), args[0]); err != nil {
				return err
			}
			if err := db.SetAssignment(args[0]); err != nil {
				return err
			}
			cmd.Printf("Assigned presentation %s\n", args[0])
			return nil
		},
	}
	rootCmd.AddCommand(assignCmd)

	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "http://localhost:8080", "Content service base URL")
	rootCmd.PersistentFlags().StringVar(&dbDirFlag, "db-dir", "", "Directory for the device identity database")

	return rootCmd
}

func main() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
