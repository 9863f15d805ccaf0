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
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ent0n29/roundtable/internal/assessment"
	"github.com/ent0n29/roundtable/internal/config"
	"github.com/ent0n29/roundtable/internal/discussion"
	"github.com/ent0n29/roundtable/internal/gemini"
	"github.com/ent0n29/roundtable/internal/generator"
	"github.com/ent0n29/roundtable/internal/personas"
)

func newDiscussCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discuss",
		Short: "Take part in a group discussion from the terminal",
		RunE:  runDiscuss,
	}
	cmd.Flags().String("topic", "", "Discussion topic (required)")
	cmd.Flags().String("api-key", "", "Language model API key (overrides GEMINI_API_KEY env var)")
	cmd.Flags().String("name", "You", "Your name in the transcript")
	cmd.Flags().Duration("time-limit", 10*time.Minute, "Discussion length")
	cmd.Flags().Bool("mock", false, "Use canned responses instead of the language model")
	cmd.MarkFlagRequired("topic")
	return cmd
}

func runDiscuss(cmd *cobra.Command, _ []string) error {
	topic, _ := cmd.Flags().GetString("topic")
	apiKey, _ := cmd.Flags().GetString("api-key")
	name, _ := cmd.Flags().GetString("name")
	timeLimit, _ := cmd.Flags().GetDuration("time-limit")
	mock, _ := cmd.Flags().GetBool("mock")
	if noColor, _ := cmd.Root().PersistentFlags().GetBool("no-color"); noColor {
		color.NoColor = true
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	var llm generator.LLM
	if mock || cfg.LLMProvider == "mock" {
		llm = gemini.NewMockClient()
		if apiKey == "" {
			apiKey = "mock"
		}
	} else {
		llm = gemini.NewClient(gemini.ClientConfig{
			BaseURL:    cfg.GeminiBaseURL,
			Model:      cfg.GeminiModel,
			Timeout:    cfg.LLMRequestTimeout,
			MaxRetries: cfg.LLMMaxRetries,
		})
	}
	if apiKey == "" {
		return fmt.Errorf("API key required: set --api-key flag or GEMINI_API_KEY env var")
	}
	list, err := personas.Load(cfg.PersonasFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	in := cmd.InOrStdin()
	ui := newTerminal(in, cmd.OutOrStdout())
	if f, ok := in.(*os.File); ok {
		ui.interactive = term.IsTerminal(int(f.Fd()))
	}
	ctrl, err := discussion.NewController(discussion.Options{
		ID:         "terminal",
		Personas:   list,
		Generators: generator.Factory(llm, list),
		Notify:     ui.notify,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.out, "Preparing talking points for %q...\n", topic)
	err = ctrl.Start(ctx, discussion.StartRequest{Topic: topic, APIKey: apiKey, CandidateName: name, TimeLimit: timeLimit})
	if err != nil && ctrl.Phase() != discussion.PhaseRunning {
		return err
	}

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ui.ended:
				return
			case <-ticker.C:
				ctrl.Tick(ctx)
			}
		}
	}()

	ui.converse(ctx, ctrl)
	return ui.awaitReport(ctx, ctrl)
}

type reportOutcome struct {
	report          *assessment.Report
	noContributions bool
	err             string
}

// terminal renders notices and reads the participant's input. Prompts are
// only printed when input comes from a TTY.
type terminal struct {
	out         io.Writer
	interactive bool
	lines       chan string
	ended       chan struct{}
	endOnce     sync.Once
	reports     chan reportOutcome
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	t := &terminal{
		out:     out,
		lines:   make(chan string),
		ended:   make(chan struct{}),
		reports: make(chan reportOutcome, 1),
	}
	go func() {
		defer close(t.lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			t.lines <- sc.Text()
		}
	}()
	return t
}

func (t *terminal) notify(n discussion.Notice) {
	switch n.Type {
	case discussion.NoticeUtterance:
		if n.Utterance != nil {
			printUtterance(t.out, *n.Utterance)
		}
	case discussion.NoticeTick:
		if r := n.State.RemainingSeconds; r > 0 && (r%60 == 0 || r == 30 || r == 10) {
			fmt.Fprintln(t.out, color.HiBlackString("  [%s left]", time.Duration(r)*time.Second))
		}
	case discussion.NoticeEnded:
		fmt.Fprintln(t.out, color.YellowString("\nTime is up."))
		t.endOnce.Do(func() { close(t.ended) })
	case discussion.NoticeNoContributions:
		t.deliver(reportOutcome{noContributions: true})
	case discussion.NoticeReport:
		t.deliver(reportOutcome{report: n.Report})
	case discussion.NoticeError:
		fmt.Fprintln(t.out, color.RedString("error: %s", n.Error))
		if n.State.Phase == discussion.PhaseEnded {
			t.deliver(reportOutcome{err: n.Error})
		}
	}
}

func (t *terminal) deliver(o reportOutcome) {
	select {
	case t.reports <- o:
	default:
	}
}

func (t *terminal) read(ctx context.Context, prompt string) (string, bool) {
	if t.interactive {
		fmt.Fprint(t.out, prompt)
	}
	select {
	case <-ctx.Done():
		return "", false
	case <-t.ended:
		return "", false
	case line, ok := <-t.lines:
		return strings.TrimSpace(line), ok
	}
}

// converse drives the turn loop until the countdown ends or input closes.
func (t *terminal) converse(ctx context.Context, ctrl *discussion.Controller) {
	for {
		state := ctrl.Snapshot().State
		if state.Phase != discussion.PhaseRunning {
			return
		}

		var err error
		switch state.Turn {
		case discussion.TurnInterruptPrompt:
			line, ok := t.read(ctx, color.CyanString("Add your thoughts? [y/N] "))
			if !ok {
				return
			}
			accept := strings.HasPrefix(strings.ToLower(line), "y")
			err = ctrl.AnswerInterrupt(ctx, accept)
		case discussion.TurnHuman, discussion.TurnHumanInterjecting:
			line, ok := t.read(ctx, color.GreenString("> "))
			if !ok {
				return
			}
			err = ctrl.SubmitHuman(ctx, line)
		case discussion.TurnAgent:
			if state.PendingGeneration {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			if _, ok := t.read(ctx, color.YellowString("The next speaker could not respond. Press enter to retry. ")); !ok {
				return
			}
			err = ctrl.Advance(ctx)
		default:
			time.Sleep(100 * time.Millisecond)
			continue
		}

		switch {
		case err == nil:
		case errors.Is(err, discussion.ErrEmptyMessage):
			fmt.Fprintln(t.out, color.HiBlackString("  (type something before pressing enter)"))
		case errors.Is(err, discussion.ErrNotRunning):
			return
		default:
			fmt.Fprintln(t.out, color.RedString("error: %v", err))
		}
	}
}

func (t *terminal) awaitReport(ctx context.Context, ctrl *discussion.Controller) error {
	if ctrl.Phase() == discussion.PhaseRunning {
		// Input closed early; stop without a report.
		ctrl.Reset()
		return nil
	}
	fmt.Fprintln(t.out, "Preparing your assessment...")

	for attempt := 0; attempt < 2; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Minute):
			return errors.New("timed out waiting for the report")
		case o := <-t.reports:
			switch {
			case o.noContributions:
				fmt.Fprintln(t.out, color.YellowString("No contributions were detected, so there is nothing to assess."))
				return nil
			case o.report != nil:
				printReport(t.out, *o.report)
				return nil
			}
			report, err := ctrl.GenerateReport(ctx)
			if err == nil {
				printReport(t.out, report)
				return nil
			}
			fmt.Fprintln(t.out, color.RedString("report failed: %v", err))
		}
	}
	return errors.New("could not generate the report")
}
