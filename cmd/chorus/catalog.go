package main

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"chorus/internal/config"
	"chorus/internal/ui"
)

var (
	idStyle   = lipgloss.NewStyle().Width(16)
	nameStyle = lipgloss.NewStyle().Width(20)
)

func newModelsCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List available models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			for _, info := range a.reg.All() {
				mark := " "
				if slices.Contains(a.cfg.Defaults.Models, info.ID) {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %s%s%s\n", mark,
					idStyle.Render(info.ID),
					nameStyle.Foreground(ui.ModelColor(info.Color)).Render(info.Name),
					ui.DimStyle.Render(info.Provider+" - "+info.Description))
			}
			fmt.Fprintf(out, "\n* selected by default (max %d at once)\n", a.cfg.Defaults.MaxModels)
			return nil
		},
	}
}

func newModesCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List project modes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			for _, mode := range a.reg.Modes() {
				mark := " "
				if mode.ID == a.cfg.Defaults.Mode {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %s%s%s\n", mark,
					idStyle.Render(mode.ID),
					nameStyle.Render(mode.Name),
					ui.DimStyle.Render(mode.Description))
			}
			return nil
		},
	}
}

func newConfigCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			path := *cfgPath
			if path == "" {
				path = config.ConfigPath()
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		},
	})
	return cmd
}
