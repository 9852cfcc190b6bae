package history_test

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/sentineleye/internal/history"
	"github.com/kiranshivaraju/sentineleye/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func fixture() []models.Job {
	return []models.Job{
		{
			ID: "job-amazon", Status: models.JobStatusCompleted, Message: "Analysis complete",
			Coordinates: models.Coordinates{Lat: -10.5, Lon: -63},
			ChangeTypes: []models.ChangeType{models.ChangeDeforestation},
			CreatedAt:   base.Add(2 * time.Hour),
		},
		{
			ID: "job-lagos", Status: models.JobStatusProcessing, Message: "Computing NDVI",
			Coordinates: models.Coordinates{Lat: 6.5, Lon: 3.4},
			ChangeTypes: []models.ChangeType{models.ChangeUrbanExpansion},
			CreatedAt:   base.Add(time.Hour),
		},
		{
			ID: "job-borneo", Status: models.JobStatusFailed, Message: "No imagery for range",
			Coordinates: models.Coordinates{Lat: 1, Lon: 114},
			ChangeTypes: []models.ChangeType{models.ChangeEncroachment, models.ChangeDeforestation},
			CreatedAt:   base.Add(3 * time.Hour),
		},
	}
}

func ids(jobs []models.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ID)
	}
	return out
}

func TestApply_DefaultNewestFirst(t *testing.T) {
	got := history.Apply(fixture(), history.Filter{})
	assert.Equal(t, []string{"job-borneo", "job-amazon", "job-lagos"}, ids(got))
}

func TestApply_Oldest(t *testing.T) {
	got := history.Apply(fixture(), history.Filter{Sort: history.SortOldest})
	assert.Equal(t, []string{"job-lagos", "job-amazon", "job-borneo"}, ids(got))
}

func TestApply_StatusFilter(t *testing.T) {
	got := history.Apply(fixture(), history.Filter{Status: string(models.JobStatusFailed)})
	assert.Equal(t, []string{"job-borneo"}, ids(got))

	got = history.Apply(fixture(), history.Filter{Status: history.StatusAll})
	assert.Len(t, got, 3)
}

func TestApply_SearchIsCaseInsensitive(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"AMAZON", []string{"job-amazon"}},
		{"ndvi", []string{"job-lagos"}},
		{"Deforestation", []string{"job-borneo", "job-amazon"}},
		{"-10.5000", []string{"job-amazon"}},
		{"-10.5,-63", []string{"job-amazon"}},
		{"6.5,3.4", []string{"job-lagos"}},
		{"  ", []string{"job-borneo", "job-amazon", "job-lagos"}},
		{"nowhere", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := history.Apply(fixture(), history.Filter{Query: tt.query})
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestApply_DoesNotModifyInput(t *testing.T) {
	jobs := fixture()
	history.Apply(jobs, history.Filter{Sort: history.SortOldest})
	assert.Equal(t, "job-amazon", jobs[0].ID)
}

func TestParseFilter(t *testing.T) {
	f, err := history.ParseFilter(" amazon ", "completed", "oldest")
	require.NoError(t, err)
	assert.Equal(t, history.Filter{Query: "amazon", Status: "Completed", Sort: history.SortOldest}, f)

	f, err = history.ParseFilter("", "all", "")
	require.NoError(t, err)
	assert.Equal(t, history.StatusAll, f.Status)
	assert.Equal(t, history.SortNewest, f.Sort)

	_, err = history.ParseFilter("", "running", "")
	assert.Error(t, err)

	_, err = history.ParseFilter("", "", "sideways")
	assert.Error(t, err)
}

func TestDefaultSelection(t *testing.T) {
	id, ok := history.DefaultSelection(fixture())
	assert.True(t, ok)
	assert.Equal(t, "job-borneo", id)

	_, ok = history.DefaultSelection(nil)
	assert.False(t, ok)
}
