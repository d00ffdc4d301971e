package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"podforge/internal/pipeline"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "health",
		Short:       "Show daemon health and stage readiness",
		Annotations: clientAnnotations,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			health, err := client.Health(cmd.Context())
			if err != nil {
				return wrapClientError(err, client)
			}
			return emit(cmd, ctx, health, func() error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				kind := statusOK
				if health.Status != "healthy" {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine("Engine", kind, health.Status, colorize))
				fmt.Fprintln(out, renderStatusLine("Uptime", statusInfo, health.Uptime, false))
				if health.Detail != "" {
					fmt.Fprintln(out, renderStatusLine("Detail", statusWarn, health.Detail, colorize))
				}
				for _, s := range health.Stages {
					stageKind := statusOK
					detail := "ready"
					if !s.Ready {
						stageKind = statusWarn
						detail = s.Detail
					}
					fmt.Fprintln(out, renderStatusLine("Stage "+s.Name, stageKind, detail, colorize))
				}
				return nil
			})
		},
	}
}

func newMetricsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "metrics",
		Short:       "Show throughput, failure rate, and queue depth",
		Annotations: clientAnnotations,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			snap, err := client.Metrics(cmd.Context())
			if err != nil {
				return wrapClientError(err, client)
			}
			return emit(cmd, ctx, snap, func() error {
				out := cmd.OutOrStdout()
				rows := [][]string{
					{"Processed", strconv.FormatInt(snap.TotalProcessed, 10)},
					{"Succeeded", strconv.FormatInt(snap.Succeeded, 10)},
					{"Failed", strconv.FormatInt(snap.Failed, 10)},
					{"Cancelled", strconv.FormatInt(snap.Cancelled, 10)},
					{"Retried", strconv.FormatInt(snap.Retried, 10)},
					{"Queue depth", strconv.Itoa(snap.QueueDepth)},
					{"Running", strconv.Itoa(snap.RunningCount)},
					{"Avg duration", (time.Duration(snap.AvgDurationMs) * time.Millisecond).String()},
					{"Failure rate", fmt.Sprintf("%.1f%%", snap.FailureRate*100)},
					{"Uptime", (time.Duration(snap.UptimeSeconds) * time.Second).String()},
					{"Healthy", yesNo(snap.Healthy)},
				}
				fmt.Fprint(out, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
				if len(snap.StageAvgMs) > 0 {
					stageRows := make([][]string, 0, len(snap.StageAvgMs))
					for _, name := range []string{pipeline.StagePrompt, pipeline.StageGeneration, pipeline.StagePostProcess, pipeline.StagePublish} {
						if ms, ok := snap.StageAvgMs[name]; ok {
							stageRows = append(stageRows, []string{name, (time.Duration(ms) * time.Millisecond).String()})
						}
					}
					fmt.Fprint(out, renderTable([]string{"Stage", "Avg"}, stageRows, []columnAlignment{alignLeft, alignRight}))
				}
				return nil
			})
		},
	}
}
