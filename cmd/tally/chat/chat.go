package chat

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"tally/internal/client"
	"tally/internal/config"
	"tally/internal/db"
	"tally/internal/snapshot"
)

var (
	month string
	mode  string
)

var Cmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent from the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		d, err := db.Open(cfg.Client.DBPath)
		if err != nil {
			return fmt.Errorf("opening client db: %w", err)
		}
		defer d.Close()
		if err := d.Migrate(); err != nil {
			return fmt.Errorf("migrating client db: %w", err)
		}

		store := snapshot.NewStore(d)
		// A leftover snapshot means the previous session died mid-run; show
		// its thinking panel until the next send clears it.
		leftover, err := store.Load(context.Background())
		if err != nil {
			leftover = nil
		}

		updates := make(chan tea.Msg, 256)
		cl := client.New(cfg.Client.BaseURL, channelSink{ch: updates},
			client.WithPersistence(snapshot.NewObserver(store)))

		m := newModel(cl, updates, leftover, client.SendOptions{Month: month, Mode: mode})
		p := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("running chat ui: %w", err)
		}
		cl.Cancel()
		return nil
	},
}

func init() {
	Cmd.Flags().StringVarP(&month, "month", "m", "", "month context, e.g. 2026-08")
	Cmd.Flags().StringVar(&mode, "mode", "", "force a specific answer mode")
}

// channelSink feeds client state updates into the bubbletea message pump.
type channelSink struct {
	ch chan tea.Msg
}

func (s channelSink) Publish(st client.State) {
	s.ch <- stateMsg{state: st}
}
