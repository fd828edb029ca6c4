// jobrelay-watch triggers a workflow run through the engine webhook and
// renders its progress stream in the terminal until the run finishes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"jobrelay/internal/engine"
	"jobrelay/internal/progress"
	"jobrelay/internal/relay"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

type watchOptions struct {
	relayURL   string
	webhookURL string
	payload    string
	workflowID string
	timeout    time.Duration
}

func main() {
	opts := watchOptions{}

	rootCmd := &cobra.Command{
		Use:   "jobrelay-watch",
		Short: "Trigger a workflow and stream its progress",
		Long: fmt.Sprintf(`%s

Triggers a workflow run through the engine webhook, binds the returned
execution id to a fresh workflow id on the relay, and renders the live
progress stream until the run completes or fails.

%s
  jobrelay-watch --webhook https://engine.example/webhook/abc \
      --payload '{"searchTerm":"golang developer"}'
  jobrelay-watch --relay http://localhost:8080 --timeout 30m`,
			bold("jobrelay-watch"), bold("EXAMPLES:")),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts)
		},
	}

	rootCmd.Flags().StringVar(&opts.relayURL, "relay", "http://localhost:8080", "Relay server base URL")
	rootCmd.Flags().StringVar(&opts.webhookURL, "webhook", "", "Engine webhook URL that starts the workflow")
	rootCmd.Flags().StringVar(&opts.payload, "payload", "{}", "JSON payload for the webhook")
	rootCmd.Flags().StringVar(&opts.workflowID, "workflow-id", "", "Workflow id to subscribe under (generated when empty)")
	rootCmd.Flags().DurationVar(&opts.timeout, "timeout", time.Hour, "Give up waiting for progress after this long")
	_ = rootCmd.MarkFlagRequired("webhook")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runWatch(ctx context.Context, opts watchOptions) error {
	var payload map[string]any
	if err := json.Unmarshal([]byte(opts.payload), &payload); err != nil {
		return fmt.Errorf("invalid --payload JSON: %w", err)
	}

	workflowID := opts.workflowID
	if workflowID == "" {
		workflowID = fmt.Sprintf("workflow_%s", uuid.NewString())
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	// Subscribe before triggering so no early progress frame is lost.
	stream, err := progress.Subscribe(ctx, opts.relayURL, workflowID)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer stream.Close()

	handshake, err := stream.Next()
	if err != nil {
		return fmt.Errorf("await handshake: %w", err)
	}
	if handshake.Type != relay.EventConnection {
		return fmt.Errorf("unexpected first frame %q", handshake.Type)
	}
	fmt.Printf("%s %s\n", gray("connected"), gray(workflowID))

	client := engine.NewClient(opts.webhookURL, opts.relayURL)

	executionID, err := client.Trigger(ctx, payload)
	if err != nil {
		renderBanner(progress.Apply(progress.NewModel(), relay.ProgressEvent{
			Type:    relay.EventError,
			Message: "Request could not be processed. Please try again later.",
		}))
		return fmt.Errorf("trigger: %w", err)
	}

	if err := client.RegisterExecution(ctx, executionID, workflowID); err != nil {
		return fmt.Errorf("register execution: %w", err)
	}
	fmt.Printf("%s %s\n", gray("execution"), gray(executionID))

	model := progress.NewModel()
	rendered := renderEntries(model, 0)

	for {
		ev, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) && model.Done {
				break
			}
			return fmt.Errorf("stream: %w", err)
		}

		model = progress.Apply(model, ev)
		rendered = renderEntries(model, rendered)

		if model.Done {
			renderBanner(model)
			if model.Banner == progress.BannerFailure {
				return errors.New("workflow failed")
			}
			return nil
		}
	}

	renderBanner(model)
	return nil
}

// renderEntries prints rows the previous call has not shown yet, plus the
// final state of rows that were running last time. Returns how many rows
// are now settled on screen.
func renderEntries(m progress.Model, settled int) int {
	for i := settled; i < len(m.Entries); i++ {
		entry := m.Entries[i]
		switch entry.Status {
		case progress.StatusRunning:
			// Still in flight, re-rendered on the next event.
			return i
		case progress.StatusError:
			fmt.Printf("%s %s  %s\n", red("✗"), bold(entry.Step), red(entry.Message))
		default:
			fmt.Printf("%s %s  %s %s\n", green("✓"), bold(entry.Step), entry.Message, gray(percentLabel(m)))
		}
	}
	return len(m.Entries)
}

func renderBanner(m progress.Model) {
	if m.Banner == progress.BannerFailure {
		fmt.Printf("\n%s\n", red(bold("Workflow failed")))
		return
	}
	fmt.Printf("\n%s %s\n", green(bold("Workflow complete")), cyan(percentLabel(m)))
}

func percentLabel(m progress.Model) string {
	return fmt.Sprintf("%d%%", m.Percent)
}
