package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/normanking/procurevoice/internal/lang"
	"github.com/normanking/procurevoice/internal/tts"
)

func newVoicesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the speech engine's voices and the voice picked per language",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			engine, err := a.speechEngine()
			if err != nil {
				return err
			}
			if say, ok := engine.(*tts.SayEngine); ok {
				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				defer cancel()
				if err := say.LoadVoices(ctx); err != nil {
					return fmt.Errorf("failed to list voices: %w", err)
				}
			}

			catalog := engine.Voices()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Voices (%d)", len(catalog))))
			for _, v := range catalog {
				fmt.Fprintf(out, "  %-32s %-8s %s\n", v.Name, v.Lang, dimStyle.Render(string(v.Gender)))
			}

			fmt.Fprintln(out)
			for _, tag := range lang.Supported {
				v, ok := tts.SelectVoice(string(tag), catalog)
				name := dimStyle.Render("engine default")
				if ok {
					name = assistantStyle.Render(v.Name)
				}
				fmt.Fprintf(out, "  %-16s %s\n", tag.Name(), name)
			}
			return nil
		},
	}
}
