// Package report turns daily aggregate rows into the operator summary.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"whatsapp-salesbot/internal/models"
	"whatsapp-salesbot/internal/store"
)

// Summary is the rolled-up view of one day of outreach.
type Summary struct {
	Total       int                                `json:"total"`
	Sent        int                                `json:"sent"`
	SuccessRate float64                            `json:"success_rate"` // percent, one decimal
	ByCampus    map[string]map[models.Outcome]int  `json:"by_campus"`
}

// Build rolls aggregate rows up into totals and a success rate rounded to
// one decimal place.
func Build(rows []store.AggregateRow) Summary {
	s := Summary{ByCampus: make(map[string]map[models.Outcome]int)}
	for _, r := range rows {
		s.Total += r.Count
		if r.Status == models.OutcomeSent {
			s.Sent += r.Count
		}
		if s.ByCampus[r.Campus] == nil {
			s.ByCampus[r.Campus] = make(map[models.Outcome]int)
		}
		s.ByCampus[r.Campus][r.Status] += r.Count
	}
	if s.Total > 0 {
		s.SuccessRate = math.Round(float64(s.Sent)/float64(s.Total)*1000) / 10
	}
	return s
}

// RenderHTML produces the daily report email body.
func RenderHTML(s Summary, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<html><body style="font-family: Arial, sans-serif;">`)
	fmt.Fprintf(&b, `<h2>Daily Outreach Report — %s</h2>`, now.Format("2006-01-02"))
	fmt.Fprintf(&b, `<p><strong>Total processed:</strong> %d<br>`, s.Total)
	fmt.Fprintf(&b, `<strong>Messages sent:</strong> %d<br>`, s.Sent)
	fmt.Fprintf(&b, `<strong>Success rate:</strong> %.1f%%</p>`, s.SuccessRate)

	campuses := make([]string, 0, len(s.ByCampus))
	for c := range s.ByCampus {
		campuses = append(campuses, c)
	}
	sort.Strings(campuses)

	b.WriteString(`<table border="1" cellpadding="6" cellspacing="0"><tr><th>Campus</th><th>Status</th><th>Count</th></tr>`)
	for _, campus := range campuses {
		outcomes := s.ByCampus[campus]
		statuses := make([]string, 0, len(outcomes))
		for o := range outcomes {
			statuses = append(statuses, string(o))
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td><td>%d</td></tr>`,
				campus, status, outcomes[models.Outcome(status)])
		}
	}
	b.WriteString(`</table></body></html>`)
	return b.String()
}
