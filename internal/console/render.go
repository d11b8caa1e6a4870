package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gemini-console/internal/accesskeys"
	"gemini-console/internal/keys"
	"gemini-console/internal/media"
	"gemini-console/internal/models"
	"gemini-console/internal/settings"
)

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// RenderSettings prints every panel; password values are hidden.
func RenderSettings(w io.Writer, panels []settings.Panel) error {
	tw := table(w)
	for i, p := range panels {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "[%s]\n", p.Name)
		for _, f := range p.Fields {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Key, fieldValue(f), f.Label)
			if f.ShowDescription() {
				fmt.Fprintf(tw, "  \t%s\t\n", f.Description)
			}
			for _, o := range f.Options {
				mark := "( )"
				if o.Checked {
					mark = "(*)"
				}
				line := mark + " " + o.Value
				if o.Description != "" {
					line += " - " + o.Description
				}
				fmt.Fprintf(tw, "  \t%s\t\n", line)
			}
		}
	}
	return tw.Flush()
}

func fieldValue(f settings.Field) string {
	switch {
	case f.IsRadio():
		return ""
	case f.Type == "password" && f.Value != "":
		return "********"
	case f.Key == settings.KeysField:
		return fmt.Sprintf("(%d keys)", len(keys.ParseList(f.Value)))
	}
	return f.Value
}

func RenderMappings(w io.Writer, rows []models.APIMapping) error {
	tw := table(w)
	fmt.Fprintln(tw, "PREFIX\tTARGET")
	for _, m := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", m.Prefix, m.TargetURL)
	}
	return tw.Flush()
}

// RenderKeys lists the working key list with check results. Keys are masked
// unless reveal is set.
func RenderKeys(w io.Writer, store *keys.Store, reveal bool) error {
	tw := table(w)
	fmt.Fprintln(tw, "#\tKEY\tSTATUS\tMESSAGE")
	for i, k := range store.Current() {
		shown := k
		if !reveal {
			shown = keys.Mask(k)
		}
		st := store.State(k)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, shown, st.Status, st.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return RenderKeyStatus(w, store)
}

func RenderKeyStatus(w io.Writer, store *keys.Store) error {
	state := "saved"
	if store.Modified() {
		state = "unsaved changes"
	}
	_, err := fmt.Fprintf(w, "%d keys, %d invalid, %s\n", store.Len(), len(store.Invalid()), state)
	return err
}

func RenderReport(w io.Writer, r keys.Report) error {
	label := "liveness"
	if r.Run.Model != "" {
		label = "model " + r.Run.Model
	}
	_, err := fmt.Fprintf(w, "Checked %d/%d keys (%s) in %s: %d valid, %d invalid\n",
		r.Checked, r.Run.Total, label, r.Duration.Round(time.Millisecond), r.Valid, len(r.Invalid))
	return err
}

func RenderRuns(w io.Writer, runs []keys.RunSummary) error {
	tw := table(w)
	fmt.Fprintln(tw, "RUN\tSTARTED\tMODEL\tVALID\tAVG LATENCY")
	for _, r := range runs {
		model := r.Model
		if model == "" {
			model = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%.0fms\n",
			shortID(r.RunID), r.StartedAt.Local().Format(time.DateTime), model, r.Valid, r.Total, r.AvgLatencyMs)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// RenderAccessKeys prints the visible rows under the filter-aware header.
func RenderAccessKeys(w io.Writer, header string, rows []models.AccessKey, now time.Time) error {
	tw := table(w)
	fmt.Fprintf(tw, "KEY\tNAME\tUSAGE\tEXPIRES\tRESET\t%s\n", header)
	for _, k := range rows {
		usage := strconv.Itoa(k.UsageCount) + " / unlimited"
		if k.UsageLimit != nil {
			usage = fmt.Sprintf("%d / %d", k.UsageCount, *k.UsageLimit)
		}
		expires := "never"
		if k.ExpiresAt != nil {
			if k.Expired(now) {
				expires = "expired"
			} else {
				expires = "in " + accesskeys.HoursRemaining(now, k.ExpiresAt) + "h"
			}
		}
		reset := "-"
		if k.ResetDaily {
			reset = "daily"
		}
		status := "active"
		if !k.IsActive {
			status = "inactive"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", k.Key, k.Name, usage, expires, reset, status)
	}
	return tw.Flush()
}

func RenderMedia(w io.Writer, files []models.MediaFile, selected []string, p media.Pagination) error {
	picked := make(map[string]bool, len(selected))
	for _, s := range selected {
		picked[s] = true
	}
	tw := table(w)
	fmt.Fprintln(tw, "SEL\tFILE\tKIND\tCREATED\tURL")
	for _, f := range files {
		mark := "[ ]"
		if picked[f.Filename] {
			mark = "[x]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, f.Filename, media.KindOf(f.Filename), f.CreatedAt, f.URL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(w, "No media files.")
	}
	if !p.Hidden() {
		fmt.Fprintf(w, "%s, %d per page\n", p, p.PageSize)
	}
	return nil
}

func RenderQuota(w io.Writer, q *media.Quota) error {
	if q == nil || !q.Shown {
		_, err := fmt.Fprintln(w, "Storage details are only available for local and memory storage.")
		return err
	}
	d := q.Details
	fmt.Fprintf(w, "%s storage\n", q.StorageType)
	fmt.Fprintf(w, "  images %s %d%% (%d / %d)\n", bar(q.CountPercent()), media.RoundPercent(q.CountPercent()), d.TotalImages, d.MaxImages)
	if q.SizeBar() {
		fmt.Fprintf(w, "  size   %s %d%% (%.1f / %.1f MB)\n", bar(q.SizePercent()), media.RoundPercent(q.SizePercent()), d.TotalSizeMB, d.MaxSizeMB)
	}
	return nil
}

func bar(percent float64) string {
	const width = 20
	filled := int(percent / 100 * width)
	filled = max(0, min(width, filled))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
