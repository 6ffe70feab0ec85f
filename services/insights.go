package services

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"listing-scraper/scraper"
)

// SiteReport summarises one site's crawl.
type SiteReport struct {
	Site       string
	Status     string
	Pages      int
	Emitted    int
	Partial    int
	Duplicates int
	Failed     int
	Duration   time.Duration
	// Coverage is the share of emitted records with a value, per column,
	// in column order.
	Coverage []FieldCoverage
}

type FieldCoverage struct {
	Field   string
	Hits    int
	Percent float64
}

type Report struct {
	RunID        string
	Sites        []SiteReport
	TotalEmitted int
	TotalPartial int
	TotalFailed  int
	FailedSites  int
}

// GenerateReport turns crawl stats into the end-of-run report. Sites are
// listed by name.
func GenerateReport(runID string, stats ...scraper.Stats) Report {
	report := Report{RunID: runID}

	for _, s := range stats {
		sr := SiteReport{
			Site:       s.Site,
			Status:     "ok",
			Pages:      s.Pages,
			Emitted:    s.Emitted,
			Partial:    s.Partial,
			Duplicates: s.Duplicates,
			Failed:     s.Failed,
		}
		if !s.Started.IsZero() && s.Finished.After(s.Started) {
			sr.Duration = s.Finished.Sub(s.Started).Round(time.Second)
		}
		if s.Err != nil {
			sr.Status = "failed: " + s.Err.Error()
			report.FailedSites++
		}

		for _, f := range s.Fields {
			fc := FieldCoverage{Field: f, Hits: s.FieldHits[f]}
			if s.Emitted > 0 {
				fc.Percent = 100 * float64(fc.Hits) / float64(s.Emitted)
			}
			sr.Coverage = append(sr.Coverage, fc)
		}

		report.TotalEmitted += s.Emitted
		report.TotalPartial += s.Partial
		report.TotalFailed += s.Failed
		report.Sites = append(report.Sites, sr)
	}

	sort.Slice(report.Sites, func(i, j int) bool { return report.Sites[i].Site < report.Sites[j].Site })
	return report
}

func PrintReport(w io.Writer, report Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Crawl summary  run=%s", report.RunID)
	t.AppendHeader(table.Row{"Site", "Pages", "Emitted", "Partial", "Duplicates", "Failed", "Duration", "Status"})
	for _, s := range report.Sites {
		t.AppendRow(table.Row{s.Site, s.Pages, s.Emitted, s.Partial, s.Duplicates, s.Failed, s.Duration, truncateText(s.Status, 60)})
	}
	t.AppendFooter(table.Row{"Total", "", report.TotalEmitted, report.TotalPartial, "", report.TotalFailed, "", fmt.Sprintf("%d failed", report.FailedSites)})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	t.SetStyle(table.StyleRounded)
	t.Render()

	for _, s := range report.Sites {
		if s.Emitted == 0 || len(s.Coverage) == 0 {
			continue
		}
		fmt.Fprintln(w)

		c := table.NewWriter()
		c.SetOutputMirror(w)
		c.SetTitle("Field coverage  %s", s.Site)
		c.AppendHeader(table.Row{"Field", "Records", "Coverage"})
		for _, f := range s.Coverage {
			c.AppendRow(table.Row{f.Field, f.Hits, fmt.Sprintf("%.1f%%", f.Percent)})
		}
		c.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, Align: text.AlignRight},
			{Number: 3, Align: text.AlignRight},
		})
		c.SetStyle(table.StyleRounded)
		c.Render()
	}
}

func truncateText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
