package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"podforge/internal/api"
	"podforge/internal/queue"
)

func newJobCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newSubmitCommand(ctx),
		newBatchCommand(ctx),
		newListCommand(ctx),
		newShowCommand(ctx),
		newCancelCommand(ctx),
		newRetryCommand(ctx),
		newCleanupCommand(ctx),
	}
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		jobType     string
		prompt      string
		theme       string
		style       string
		niche       string
		products    []string
		platforms   []string
		autoPublish bool
		priority    string
	)

	cmd := &cobra.Command{
		Use:         "submit",
		Short:       "Submit a job from a prompt or a theme",
		Annotations: clientAnnotations,
		Example: `  podforge submit --prompt "retro sunset over mountains" --product tshirt --product mug
  podforge submit --theme cats --style watercolor --platform printify --auto-publish`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.SubmitRequest{
				Type:         jobType,
				Prompt:       strings.TrimSpace(prompt),
				ProductTypes: products,
				Platforms:    platforms,
				AutoPublish:  autoPublish,
			}
			if strings.TrimSpace(theme) != "" {
				req.ThemeConfig = &queue.ThemeConfig{Theme: theme, Style: style, Niche: niche}
			}
			if req.Prompt == "" && req.ThemeConfig == nil {
				return errors.New("either --prompt or --theme is required")
			}
			if strings.TrimSpace(priority) != "" {
				p, err := queue.ParsePriority(priority)
				if err != nil {
					return err
				}
				req.Priority = &p
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Submit(cmd.Context(), req)
			if err != nil {
				return wrapClientError(err, client)
			}
			return emit(cmd, ctx, resp, func() error {
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s (%s)\n", resp.JobID, resp.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&jobType, "type", "", "Job type: full_pipeline (default) or generate_only")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Image prompt")
	cmd.Flags().StringVar(&theme, "theme", "", "Theme used to synthesize a prompt")
	cmd.Flags().StringVar(&style, "style", "", "Style hint for prompt synthesis")
	cmd.Flags().StringVar(&niche, "niche", "", "Audience niche for prompt synthesis")
	cmd.Flags().StringSliceVar(&products, "product", nil, "Product type (repeatable; default from config)")
	cmd.Flags().StringSliceVar(&platforms, "platform", nil, "Publish platform (repeatable; default from config)")
	cmd.Flags().BoolVar(&autoPublish, "auto-publish", false, "Publish listings immediately instead of as drafts")
	cmd.Flags().StringVar(&priority, "priority", "", "Priority: low, normal, high, or 0-10")
	return cmd
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "batch <file>",
		Short:       "Submit jobs from a JSON file (all or nothing)",
		Long:        "Reads a JSON array of submissions, or an object with a \"jobs\" array, from <file> (\"-\" for stdin).",
		Args:        cobra.ExactArgs(1),
		Annotations: clientAnnotations,
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := readBatchFile(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.SubmitBatch(cmd.Context(), reqs)
			if err != nil {
				return wrapClientError(err, client)
			}
			return emit(cmd, ctx, resp, func() error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Submitted %d jobs\n", len(resp.JobIDs))
				for _, id := range resp.JobIDs {
					fmt.Fprintf(out, "  %s\n", id)
				}
				return nil
			})
		},
	}
}

func readBatchFile(stdin io.Reader, path string) ([]api.SubmitRequest, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	var reqs []api.SubmitRequest
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(data, &reqs)
	} else {
		var wrapper api.BatchRequest
		err = json.Unmarshal(data, &wrapper)
		reqs = wrapper.Jobs
	}
	if err != nil {
		return nil, fmt.Errorf("parse batch file: %w", err)
	}
	if len(reqs) == 0 {
		return nil, errors.New("batch file contains no jobs")
	}
	return reqs, nil
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:         "list",
		Aliases:     []string{"ls"},
		Short:       "List jobs (pending in dispatch order, others newest first)",
		Annotations: clientAnnotations,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				if _, ok := queue.ParseStatus(status); !ok {
					return fmt.Errorf("unknown status %q", status)
				}
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.List(cmd.Context(), status, limit)
			if err != nil {
				return wrapClientError(err, client)
			}
			return emit(cmd, ctx, resp, func() error {
				out := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprint(out, renderTable(jobListHeaders, buildJobListRows(resp.Jobs), jobListAligns))
				if resp.Total > len(resp.Jobs) {
					fmt.Fprintf(out, "Showing %d of %d jobs\n", len(resp.Jobs), resp.Total)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (pending, running, completed, failed, cancelled)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum jobs to show (0 for all)")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "show <id>",
		Short:       "Show a job with its stage, image, and listing results",
		Args:        cobra.ExactArgs(1),
		Annotations: clientAnnotations,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return wrapClientError(err, client)
			}
			return emit(cmd, ctx, job, func() error {
				out := cmd.OutOrStdout()
				renderJobDetail(out, *job, shouldColorize(out))
				return nil
			})
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "cancel <id>",
		Short:       "Cancel a pending job",
		Args:        cobra.ExactArgs(1),
		Annotations: clientAnnotations,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Cancel(cmd.Context(), args[0])
			if err != nil {
				return wrapClientError(err, client)
			}
			return emit(cmd, ctx, resp, func() error {
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", resp.JobID)
				return nil
			})
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "retry <id>",
		Short:       "Requeue a failed job with a fresh attempt budget",
		Args:        cobra.ExactArgs(1),
		Annotations: clientAnnotations,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Retry(cmd.Context(), args[0])
			if err != nil {
				return wrapClientError(err, client)
			}
			return emit(cmd, ctx, resp, func() error {
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s requeued\n", resp.JobID)
				return nil
			})
		},
	}
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:         "cleanup",
		Short:       "Remove finished jobs older than a cutoff",
		Annotations: clientAnnotations,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return errors.New("--older-than must not be negative")
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Cleanup(cmd.Context(), olderThan)
			if err != nil {
				return wrapClientError(err, client)
			}
			return emit(cmd, ctx, resp, func() error {
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d jobs finished more than %s ago\n", resp.JobsCleared, olderThan)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "Age cutoff for completed, failed, and cancelled jobs")
	return cmd
}
