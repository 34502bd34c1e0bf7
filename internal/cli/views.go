package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dl-alexandre/odshare/internal/mirror"
	"github.com/dl-alexandre/odshare/internal/mirror/index"
)

// mirrorReport renders a run as one row per share
type mirrorReport struct {
	mirror.Report
}

func (r mirrorReport) Headers() []string {
	return []string{"Share", "Status", "Files", "Downloaded", "Skipped", "Failed", "Size", "Duration"}
}

func (r mirrorReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Shares))
	for _, s := range r.Shares {
		status := "ok"
		switch {
		case s.Error != nil:
			status = s.Error.Code
		case s.Summary.Failed > 0:
			status = "partial"
		case r.DryRun:
			status = "planned"
		}
		transferred := s.Summary.Downloaded
		if r.DryRun {
			transferred = s.Summary.Planned
		}
		rows = append(rows, []string{
			s.ShareID,
			status,
			strconv.Itoa(s.Files),
			strconv.Itoa(transferred),
			strconv.Itoa(s.Summary.Skipped),
			strconv.Itoa(s.Summary.Failed),
			humanize.IBytes(uint64(s.Bytes)),
			s.Duration.Round(time.Millisecond).String(),
		})
	}
	return rows
}

func (r mirrorReport) EmptyMessage() string {
	return "No shares mirrored"
}

// failureLines describes every failed share and task, one per line
func failureLines(r mirror.Report) []string {
	var lines []string
	for _, s := range r.Shares {
		if s.Error != nil {
			lines = append(lines, fmt.Sprintf("%s: [%s] %s", s.ShareID, s.Error.Code, s.Error.Message))
		}
		for _, t := range s.Summary.FailedResults() {
			code, msg := "", ""
			if t.Error != nil {
				code, msg = t.Error.Code, t.Error.Message
			}
			lines = append(lines, fmt.Sprintf("%s/%s: [%s] %s", s.ShareID, t.RelPath, code, msg))
		}
	}
	return lines
}

// planView renders a plan as one row per task
type planView struct {
	mirror.Plan
}

func (p planView) Headers() []string {
	return []string{"Path", "Size", "Target"}
}

func (p planView) Rows() [][]string {
	rows := make([][]string, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		rows = append(rows, []string{
			truncate(t.RelPath, 60),
			humanize.IBytes(uint64(t.File.Size)),
			t.Path(),
		})
	}
	return rows
}

func (p planView) EmptyMessage() string {
	return "No files to download"
}

type historyView struct {
	Runs []index.RunSummary `json:"runs"`
}

func (h historyView) Headers() []string {
	return []string{"Run", "Started", "Status", "Shares", "Downloaded", "Skipped", "Failed", "Size"}
}

func (h historyView) Rows() [][]string {
	rows := make([][]string, 0, len(h.Runs))
	for _, r := range h.Runs {
		rows = append(rows, []string{
			r.ID,
			humanize.Time(r.StartedAt),
			r.Status,
			truncate(strings.Join(r.Shares, ","), 40),
			strconv.Itoa(r.Downloaded),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Failed),
			humanize.IBytes(uint64(r.Bytes)),
		})
	}
	return rows
}

func (h historyView) EmptyMessage() string {
	return "No runs recorded"
}

type failuresView struct {
	RunID  string              `json:"runId"`
	Shares []index.ShareRecord `json:"shares"`
	Tasks  []index.TaskRecord  `json:"tasks"`
}

func (f failuresView) Headers() []string {
	return []string{"Share", "Path", "Code", "Message"}
}

func (f failuresView) Rows() [][]string {
	rows := make([][]string, 0, len(f.Shares)+len(f.Tasks))
	for _, s := range f.Shares {
		rows = append(rows, []string{s.ShareID, "-", s.ErrorCode, truncate(s.ErrorMessage, 80)})
	}
	for _, t := range f.Tasks {
		rows = append(rows, []string{t.ShareID, truncate(t.RelPath, 60), t.ErrorCode, truncate(t.ErrorMessage, 80)})
	}
	return rows
}

func (f failuresView) EmptyMessage() string {
	return fmt.Sprintf("No failures in run %s", f.RunID)
}
