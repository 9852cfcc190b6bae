// Package history projects the job store into the filtered, searched and
// sorted list shown on the history page.
package history

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/sentineleye/pkg/models"
	"golang.org/x/text/cases"
)

type Sort string

const (
	SortNewest Sort = "NEWEST"
	SortOldest Sort = "OLDEST"
)

// StatusAll disables status filtering.
const StatusAll = "ALL"

// Filter selects and orders history entries. The zero value matches every
// job, newest first.
type Filter struct {
	Query  string
	Status string
	Sort   Sort
}

// ParseFilter builds a Filter from raw query parameters, normalizing status
// casing the same way remote statuses are normalized.
func ParseFilter(query, status, order string) (Filter, error) {
	f := Filter{Query: strings.TrimSpace(query), Status: StatusAll, Sort: SortNewest}

	if s := strings.TrimSpace(status); s != "" && !strings.EqualFold(s, StatusAll) {
		parsed, err := models.ParseJobStatus(s)
		if err != nil {
			return Filter{}, err
		}
		f.Status = string(parsed)
	}

	switch strings.ToUpper(strings.TrimSpace(order)) {
	case "", string(SortNewest):
	case string(SortOldest):
		f.Sort = SortOldest
	default:
		return Filter{}, fmt.Errorf("unknown sort %q", order)
	}
	return f, nil
}

// Apply returns the jobs matching f. The input slice is not modified.
// Ordering is by CreatedAt, ties broken by id.
func Apply(jobs []models.Job, f Filter) []models.Job {
	fold := cases.Fold()
	query := fold.String(strings.TrimSpace(f.Query))

	out := make([]models.Job, 0, len(jobs))
	for _, j := range jobs {
		if f.Status != "" && f.Status != StatusAll && string(j.Status) != f.Status {
			continue
		}
		if query != "" && !strings.Contains(fold.String(searchText(j)), query) {
			continue
		}
		out = append(out, j)
	}

	oldest := f.Sort == SortOldest
	sort.SliceStable(out, func(i, k int) bool {
		a, b := out[i], out[k]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if oldest {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// DefaultSelection returns the id of the entry the history page selects when
// nothing is chosen yet: the most recently created job.
func DefaultSelection(jobs []models.Job) (string, bool) {
	sorted := Apply(jobs, Filter{})
	if len(sorted) == 0 {
		return "", false
	}
	return sorted[0].ID, true
}

func searchText(j models.Job) string {
	plain := strconv.FormatFloat(j.Coordinates.Lat, 'f', -1, 64) + "," +
		strconv.FormatFloat(j.Coordinates.Lon, 'f', -1, 64)
	parts := []string{j.ID, string(j.Status), j.Message, j.Coordinates.Label(), plain}
	for _, t := range j.ChangeTypes {
		parts = append(parts, string(t))
	}
	return strings.Join(parts, " ")
}
