package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/rid-registry/internal/application/ingest"
	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/interfaces/http/handlers"
)

// reportView renders a run report for the three output formats.  JSON output
// is the report itself.
type reportView struct {
	*ingest.RunReport
}

func (v reportView) TableHeaders() []string {
	return []string{"SNAPSHOT", "CATEGORY", "MODE", "SEEN", "CREATED", "UPDATED", "UNCHANGED", "SKIPPED", "STALE", "ERRORS", "EDGES +/-", "MARKED"}
}

func (v reportView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Snapshots)+1)
	for _, s := range v.Snapshots {
		marked := strconv.FormatBool(s.Marked)
		if s.Skipped {
			marked = "skipped"
		}
		rows = append(rows, statsRow(strconv.FormatInt(s.SnapshotID, 10), s.Category, s.Mode, s.Stats,
			fmt.Sprintf("%d/%d", s.Relations.EdgesInserted, s.Relations.EdgesDeleted), marked))
	}
	rows = append(rows, statsRow("total", "", "", v.Totals, "", ""))
	return rows
}

func statsRow(id, category, mode string, s ingest.Stats, edges, marked string) []string {
	return []string{
		id, category, mode,
		strconv.Itoa(s.RecordsSeen), strconv.Itoa(s.Created), strconv.Itoa(s.Updated),
		strconv.Itoa(s.Unchanged), strconv.Itoa(s.Skipped), strconv.Itoa(s.SkippedByStaleness),
		strconv.Itoa(s.Errors), edges, marked,
	}
}

func (v reportView) String() string {
	var sb strings.Builder
	mode := ""
	if v.Preview {
		mode = " (preview, nothing written)"
	}
	fmt.Fprintf(&sb, "run %s%s finished in %s\n", v.RunID, mode, v.FinishedAt.Sub(v.StartedAt).Round(time.Millisecond))
	for _, s := range v.Snapshots {
		switch {
		case s.Skipped:
			fmt.Fprintf(&sb, "  %s snapshot %d skipped: %s\n", s.Category, s.SnapshotID, s.Error)
			continue
		case s.Error != "":
			fmt.Fprintf(&sb, "  %s snapshot %d failed: %s\n", s.Category, s.SnapshotID, s.Error)
		}
		fmt.Fprintf(&sb, "  %s snapshot %d [%s]: %s; edges +%d -%d, unresolved %d, marked %t\n",
			s.Category, s.SnapshotID, s.Mode, formatStats(s.Stats),
			s.Relations.EdgesInserted, s.Relations.EdgesDeleted, s.Relations.Unresolved, s.Marked)
		for _, re := range s.RowErrors {
			fmt.Fprintf(&sb, "    row %s: %s\n", re.RegistrationNumber, re.Message)
		}
	}
	categories := make([]string, 0, len(v.CategoryErrors))
	for c := range v.CategoryErrors {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		fmt.Fprintf(&sb, "  %s not processed: %s\n", c, v.CategoryErrors[c])
	}
	fmt.Fprintf(&sb, "total: %s\n", formatStats(v.Totals))
	e := v.Entities
	fmt.Fprintf(&sb, "entities: persons %d matched %d created; organizations %d matched %d fuzzy %d created; countries missed %d",
		e.PersonsMatched, e.PersonsCreated, e.OrgsMatched, e.OrgsFuzzyMatched, e.OrgsCreated, e.CountriesMissed)
	return sb.String()
}

func formatStats(s ingest.Stats) string {
	return fmt.Sprintf("seen %d, created %d, updated %d, unchanged %d, skipped %d, stale %d, errors %d",
		s.RecordsSeen, s.Created, s.Updated, s.Unchanged, s.Skipped, s.SkippedByStaleness, s.Errors)
}

// snapshotList renders registered snapshots.
type snapshotList []*registry.Snapshot

func (l snapshotList) TableHeaders() []string {
	return []string{"ID", "CATEGORY", "UPLOADED", "PROCESSED", "SOURCE"}
}

func (l snapshotList) TableRows() [][]string {
	rows := make([][]string, len(l))
	for i, s := range l {
		processed := "-"
		if s.LastProcessedAt != nil {
			processed = s.LastProcessedAt.UTC().Format(time.RFC3339)
		}
		rows[i] = []string{
			strconv.FormatInt(s.ID, 10), string(s.Category),
			s.UploadedAt.UTC().Format(time.RFC3339), processed, s.SourceURI,
		}
	}
	return rows
}

func (l snapshotList) MarshalJSON() ([]byte, error) {
	views := make([]handlers.SnapshotView, len(l))
	for i, s := range l {
		views[i] = handlers.NewSnapshotView(s)
	}
	return json.Marshal(views)
}

func (l snapshotList) String() string {
	if len(l) == 0 {
		return "no snapshots"
	}
	return strings.TrimRight(FormatTable(l.TableHeaders(), l.TableRows()), "\n")
}
