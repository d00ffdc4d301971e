package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"podforge/internal/api"
	"podforge/internal/queue"
)

var titleCaser = cases.Title(language.English)

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return titleCaser.String(strings.ReplaceAll(status, "_", " "))
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.Local().Format("2006-01-02 15:04:05")
	}
	return value
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func describeInput(in queue.Input) string {
	if prompt := strings.TrimSpace(in.Prompt); prompt != "" {
		return truncate(prompt, 48)
	}
	if in.ThemeConfig != nil {
		return "theme: " + truncate(in.ThemeConfig.Theme, 41)
	}
	return "-"
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

func buildJobListRows(jobs []api.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		stage := job.Stage
		if stage == "" {
			stage = "-"
		}
		rows = append(rows, []string{
			shortID(job.ID),
			formatStatusLabel(job.Status),
			job.Type,
			job.Priority,
			stage,
			strconv.Itoa(job.Progress) + "%",
			fmt.Sprintf("%d/%d", job.Attempt, job.MaxAttempts),
			describeInput(job.Input),
			formatDisplayTime(job.CreatedAt),
		})
	}
	return rows
}

var jobListHeaders = []string{"ID", "Status", "Type", "Priority", "Stage", "Progress", "Attempts", "Input", "Created"}

var jobListAligns = []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft}

func renderJobDetail(out io.Writer, job api.Job, colorize bool) {
	printSection(out, "Job "+job.ID, colorize)
	fmt.Fprintln(out, renderStatusLine("Status", statusKindForJob(job.Status), formatStatusLabel(job.Status), colorize))
	fields := [][2]string{
		{"Type", job.Type},
		{"Priority", job.Priority},
		{"Stage", job.Stage},
		{"Progress", strconv.Itoa(job.Progress) + "%"},
		{"Attempts", fmt.Sprintf("%d/%d", job.Attempt, job.MaxAttempts)},
		{"Product types", strings.Join(job.Input.ProductTypes, ", ")},
		{"Platforms", strings.Join(job.Input.Platforms, ", ")},
		{"Auto publish", yesNo(job.Input.AutoPublish)},
		{"Created", formatDisplayTime(job.CreatedAt)},
		{"Started", formatDisplayTime(job.StartedAt)},
		{"Completed", formatDisplayTime(job.CompletedAt)},
	}
	if job.NextAttemptAt != "" {
		fields = append(fields, [2]string{"Next attempt", formatDisplayTime(job.NextAttemptAt)})
	}
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			continue
		}
		fmt.Fprintln(out, renderStatusLine(f[0], statusInfo, f[1], false))
	}
	if prompt := strings.TrimSpace(job.Input.Prompt); prompt != "" {
		fmt.Fprintln(out, renderStatusLine("Prompt", statusInfo, prompt, false))
	} else if theme := job.Input.ThemeConfig; theme != nil {
		fmt.Fprintln(out, renderStatusLine("Theme", statusInfo, strings.Join(nonEmpty(theme.Theme, theme.Style, theme.Niche), " / "), false))
	}
	if job.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, job.Error, colorize))
	}
	for _, w := range job.Warnings {
		fmt.Fprintln(out, renderStatusLine("Warning", statusWarn, w, colorize))
	}

	res := job.Result
	if res == nil {
		return
	}
	if res.Prompt != "" && res.Prompt != job.Input.Prompt {
		fmt.Fprintln(out, renderStatusLine("Synthesized prompt", statusInfo, res.Prompt, false))
	}
	if len(res.Stages) > 0 {
		fmt.Fprintln(out)
		printSection(out, "Stages", colorize)
		rows := make([][]string, 0, len(res.Stages))
		for _, s := range res.Stages {
			rows = append(rows, []string{s.Name, s.Status, formatStageDuration(s), s.Detail})
		}
		fmt.Fprint(out, renderTable([]string{"Stage", "Status", "Duration", "Detail"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
	}
	if len(res.Images) > 0 {
		fmt.Fprintln(out)
		printSection(out, "Images", colorize)
		rows := make([][]string, 0, len(res.Images))
		for _, img := range res.Images {
			outcome := img.URL
			if !img.Success {
				outcome = img.Error
			}
			rows = append(rows, []string{strconv.Itoa(img.Index), yesNo(img.Success), outcome})
		}
		fmt.Fprint(out, renderTable([]string{"#", "OK", "URL / Error"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft}))
	}
	if len(res.Platforms) > 0 {
		fmt.Fprintln(out)
		printSection(out, "Listings", colorize)
		platforms := append([]queue.PlatformOutcome(nil), res.Platforms...)
		sort.SliceStable(platforms, func(i, j int) bool { return platforms[i].Platform < platforms[j].Platform })
		rows := make([][]string, 0, len(platforms))
		for _, p := range platforms {
			outcome := p.URL
			if !p.Success {
				outcome = p.Error
			}
			rows = append(rows, []string{p.Platform, p.ProductType, yesNo(p.Success), yesNo(p.Published), outcome})
		}
		fmt.Fprint(out, renderTable([]string{"Platform", "Product", "OK", "Live", "URL / Error"}, rows, nil))
	}
}

func formatStageDuration(s queue.StageOutput) string {
	if s.StartedAt.IsZero() || s.CompletedAt.IsZero() {
		return "-"
	}
	return s.CompletedAt.Sub(s.StartedAt).Round(time.Millisecond).String()
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
