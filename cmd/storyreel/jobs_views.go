package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"storyreel/internal/queue"
)

func buildJobRows(jobs []*queue.Job, colorize bool) [][]string {
	sorted := make([]*queue.Job, len(jobs))
	copy(sorted, jobs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	rows := make([][]string, 0, len(sorted))
	for _, job := range sorted {
		stage := strings.TrimSpace(job.ProgressStage)
		if job.Status == queue.StatusFailed && job.ErrorMessage != "" {
			stage = job.ErrorMessage
		}
		if stage == "" {
			stage = "-"
		}
		rows = append(rows, []string{
			strconv.FormatInt(job.ID, 10),
			job.VideoID,
			colorizeStatus(job.Status, colorize),
			stage,
			strconv.Itoa(job.Attempts),
			formatDisplayTime(job.CreatedAt),
		})
	}
	return rows
}

func formatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// lookupJob resolves a numeric queue id, an exact video id, or a unique
// fuzzy match against known video ids.
func lookupJob(ctx context.Context, store *queue.Store, ref string) (*queue.Job, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("job reference is empty")
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		job, err := store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
	}
	job, err := store.FindByVideoID(ctx, ref)
	if err != nil {
		return nil, err
	}
	if job != nil {
		return job, nil
	}

	jobs, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	byVideo := make(map[string]*queue.Job, len(jobs))
	videoIDs := make([]string, 0, len(jobs))
	for _, j := range jobs {
		existing, ok := byVideo[j.VideoID]
		if !ok {
			videoIDs = append(videoIDs, j.VideoID)
		}
		if !ok || j.ID > existing.ID {
			byVideo[j.VideoID] = j
		}
	}
	ranks := fuzzy.RankFindFold(ref, videoIDs)
	switch len(ranks) {
	case 0:
		return nil, fmt.Errorf("no job matches %q", ref)
	case 1:
		return byVideo[ranks[0].Target], nil
	}
	sort.Sort(ranks)
	candidates := make([]string, 0, len(ranks))
	for _, r := range ranks {
		candidates = append(candidates, r.Target)
	}
	return nil, fmt.Errorf("%q matches %d videos: %s", ref, len(ranks), strings.Join(candidates, ", "))
}

func printJobDetail(out io.Writer, job *queue.Job, colorize bool) {
	row := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		fmt.Fprintf(out, "%-16s %s\n", label+":", value)
	}
	row("Job", strconv.FormatInt(job.ID, 10))
	row("Video", job.VideoID)
	row("Status", colorizeStatus(job.Status, colorize))
	row("Bucket", job.Bucket)
	row("Transcript", job.TranscriptKey)
	row("Audio", job.AudioKey)
	row("Video key", job.VideoKey)
	if job.ClipCount > 0 {
		row("Clips", fmt.Sprintf("%d (%d placeholder)", job.ClipCount, job.Placeholders))
	}
	if job.DurationSeconds > 0 {
		row("Duration", fmt.Sprintf("%.1fs", job.DurationSeconds))
	}
	row("Attempts", strconv.Itoa(job.Attempts))
	row("Progress", strings.TrimSpace(strings.Join([]string{job.ProgressStage, job.ProgressMessage}, " ")))
	if job.ErrorMessage != "" {
		row("Error", fmt.Sprintf("%s (%s)", job.ErrorMessage, job.ExceptionType))
	}
	row("Created", formatDisplayTime(job.CreatedAt))
	row("Updated", formatDisplayTime(job.UpdatedAt))
	if job.LastHeartbeat != nil {
		row("Heartbeat", formatDisplayTime(*job.LastHeartbeat))
	}
	if job.CompletedAt != nil {
		row("Completed", formatDisplayTime(*job.CompletedAt))
	}
}
