package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"chorus/internal/ui"
)

const notifyFlushTimeout = 2 * time.Second

func newRootCmd() *cobra.Command {
	var cfgPath string
	var exportDir string

	root := &cobra.Command{
		Use:   "chorus",
		Short: "Ask several AI models at once and compare their answers",
		Long: `chorus sends one message to up to four models in parallel and streams
every answer side by side.

Examples:
  chorus                                   # interactive session
  chorus ask "Explain recursion"           # print every answer and exit
  chorus ask --models gpt-4o,deepseek --mode coding "Review this function"
  chorus models                            # list available models`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return runTUI(a, exportDir)
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default is the user config dir)")
	root.Flags().StringVar(&exportDir, "export-dir", ".", "Directory for /export")

	root.AddCommand(
		newAskCmd(&cfgPath),
		newModelsCmd(&cfgPath),
		newModesCmd(&cfgPath),
		newConfigCmd(&cfgPath),
	)
	return root
}

func runTUI(a *app, exportDir string) error {
	bridge := ui.NewBridge()
	orch, err := a.orchestrator(bridge.Observe)
	if err != nil {
		return err
	}

	m := ui.New(ui.Options{
		Orchestrator: orch,
		Registry:     a.reg,
		Bridge:       bridge,
		Booster:      a.booster(),
		Selection:    a.selection(),
		Mode:         a.cfg.Defaults.Mode,
		ExportDir:    exportDir,
		Logger:       a.logger,
	})

	a.logger.Info("starting interactive session")
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	orch.Cancel()
	return nil
}
