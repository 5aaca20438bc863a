package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"chorus/internal/boost"
	"chorus/internal/exitcode"
	"chorus/internal/models"
	"chorus/internal/orchestrator"
)

type askOptions struct {
	models []string
	mode   string
	boost  bool
	text   bool
	width  int
}

func newAskCmd(cfgPath *string) *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask [flags] <prompt>",
		Short: "Send one prompt to the selected models and print every answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runAsk(ctx, a, strings.Join(args, " "), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringSliceVar(&opts.models, "models", nil, "Comma-separated model ids (default from config)")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Project mode id (default from config)")
	cmd.Flags().BoolVar(&opts.boost, "boost", false, "Improve the prompt before sending it")
	cmd.Flags().BoolVar(&opts.text, "text", false, "Print plain text instead of rendered markdown")
	cmd.Flags().IntVar(&opts.width, "width", 100, "Wrap width for rendered output")
	return cmd
}

func runAsk(ctx context.Context, a *app, prompt string, opts askOptions, out, errOut io.Writer) error {
	if err := boost.ValidatePrompt(prompt); err != nil {
		return err
	}

	mode := opts.mode
	if mode == "" {
		mode = a.cfg.Defaults.Mode
	}
	if _, ok := a.reg.Mode(mode); !ok {
		return fmt.Errorf("unknown mode %q (see 'chorus modes')", mode)
	}

	sel, err := a.strictSelection(opts.models)
	if err != nil {
		return err
	}

	orch, err := a.orchestrator(nil)
	if err != nil {
		return err
	}

	if opts.boost {
		boosted, ok := a.booster().BoostOrOriginal(ctx, prompt)
		if ok {
			fmt.Fprintf(errOut, "Boosted prompt: %s\n\n", boosted)
			prompt = boosted
		} else {
			fmt.Fprintln(errOut, "Boost failed, sending the original prompt")
		}
	}

	if err := orch.Send(ctx, prompt, sel.IDs(), mode); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return exitcode.Cancel()
	}

	turn := orch.Snapshot()
	if opts.text {
		writeText(out, turn, a.reg)
	} else {
		doc := markdownDoc(turn, a.reg)
		rendered, err := renderMarkdown(doc, opts.width)
		if err != nil {
			a.logger.Warn("markdown render failed", "error", err)
			rendered = doc
		}
		fmt.Fprintln(out, rendered)
	}

	failed := 0
	for _, id := range turn.Models {
		if st := turn.State(id); st != nil && st.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return exitcode.Failed(fmt.Sprintf("%d of %d models failed", failed, len(turn.Models)))
	}
	return nil
}

func writeText(w io.Writer, turn orchestrator.Turn, reg *models.Registry) {
	for i, id := range turn.Models {
		st := turn.State(id)
		if st == nil {
			continue
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, reg.Name(id))
		switch {
		case st.Failed():
			fmt.Fprintf(w, "Error: %s\n", st.Error)
		default:
			fmt.Fprintln(w, strings.TrimSpace(st.Content))
			fmt.Fprintf(w, "(%d words, %d chars)\n", st.Words(), st.Chars())
		}
	}
}

func markdownDoc(turn orchestrator.Turn, reg *models.Registry) string {
	var sb strings.Builder
	for _, id := range turn.Models {
		st := turn.State(id)
		if st == nil {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n\n", reg.Name(id))
		if st.Failed() {
			fmt.Fprintf(&sb, "> **Error:** %s\n\n", st.Error)
			continue
		}
		sb.WriteString(strings.TrimSpace(st.Content))
		fmt.Fprintf(&sb, "\n\n*%d words, %d chars*\n\n", st.Words(), st.Chars())
	}
	return sb.String()
}

func renderMarkdown(doc string, width int) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	out, err := renderer.Render(doc)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
