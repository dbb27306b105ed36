package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/procurevoice/internal/archive"
	"github.com/normanking/procurevoice/internal/bus"
	"github.com/normanking/procurevoice/internal/dialogue"
	"github.com/normanking/procurevoice/internal/lang"
	"github.com/normanking/procurevoice/internal/stt"
	"github.com/normanking/procurevoice/internal/tts"
)

const chatHelp = `Commands:
  /lang en|hi     switch language
  /sound on|off   turn speech output on or off
  /mic            listen (not available in the terminal)
  /reset          start over
  /quit           exit`

func newChatCmd(flags *globalFlags) *cobra.Command {
	var (
		language string
		mute     bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant in the terminal",
		Long: `Talk to the assistant in the terminal. Replies are spoken with the
configured speech engine: "log" prints what would be said, "say" uses the
macOS speech synthesizer.

` + chatHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			if language != "" {
				a.cfg.Speech.Language = language
			}
			if mute {
				a.cfg.Speech.Sound = false
			}

			engine, err := a.speechEngine()
			if err != nil {
				return err
			}
			store, err := a.archive()
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			o := dialogue.New(dialogue.Options{
				Resolver:        a.resolver(),
				Speaker:         tts.NewController(engine, a.speechConfig(), a.logger),
				Recognizer:      stt.NewController(stt.Unavailable{}, a.filter(), a.logger),
				Training:        a.trainingSource(),
				TrainingTimeout: a.cfg.Training.Timeout,
				Lang:            a.language(),
				Sound:           a.cfg.Speech.Sound,
			}, a.logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, o, store, a.logger, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&language, "lang", "l", "", "language to start in (en-IN or hi-IN)")
	cmd.Flags().BoolVar(&mute, "mute", false, "do not speak replies")
	return cmd
}

func runChat(ctx context.Context, o *dialogue.Orchestrator, store *archive.Store, logger zerolog.Logger, in io.Reader, out io.Writer) error {
	b := o.Bus()
	if store != nil {
		store.Attach(b, logger)
	}
	b.Subscribe(bus.EventTypeTurnAppended, func(ev bus.Event) {
		turn, ok := ev.Data["turn"].(dialogue.Turn)
		if !ok || turn.Role != dialogue.RoleAssistant {
			return
		}
		fmt.Fprintln(out, assistantStyle.Render("assistant› ")+turn.Text)
	})
	b.Subscribe(bus.EventTypeNotice, func(ev bus.Event) {
		text, _ := ev.Data["text"].(string)
		fmt.Fprintln(out, noticeStyle.Render("  "+text))
	})

	fmt.Fprintln(out, titleStyle.Render("procurevoice")+dimStyle.Render("  type /help for commands"))
	if err := o.Start(ctx); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		waitForInput(ctx, o)
		fmt.Fprint(out, dimStyle.Render("you› "))

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if strings.HasPrefix(line, "/") {
			quit, err := chatCommand(ctx, o, line, out)
			if err != nil {
				fmt.Fprintln(out, errorStyle.Render("  "+err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		if _, err := o.Submit(ctx, line); err != nil && !errors.Is(err, dialogue.ErrBlankInput) && !errors.Is(err, dialogue.ErrBusy) {
			fmt.Fprintln(out, errorStyle.Render("  "+err.Error()))
		}
	}
}

func chatCommand(ctx context.Context, o *dialogue.Orchestrator, line string, out io.Writer) (bool, error) {
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(out, dimStyle.Render(chatHelp))
	case "/lang":
		tag, err := lang.Parse(arg)
		if err != nil {
			return false, err
		}
		return false, o.SwitchLanguage(ctx, tag)
	case "/sound":
		switch arg {
		case "on":
			o.SetSound(true)
		case "off":
			o.SetSound(false)
		default:
			return false, errors.New("usage: /sound on|off")
		}
	case "/mic":
		// the notice already explains an unsupported microphone
		if err := o.StartListening(); err != nil && !errors.Is(err, stt.ErrUnsupported) {
			return false, err
		}
	case "/reset":
		o.Reset()
		return false, o.Start(ctx)
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
	return false, nil
}

// waitForInput blocks while the assistant is still speaking.
func waitForInput(ctx context.Context, o *dialogue.Orchestrator) {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for o.State() != dialogue.StateAwaitingInput {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
