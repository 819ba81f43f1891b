package quarry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		total   int
		perPage int
		current int
		want    PageInfo
	}{
		{
			name:    "partial_last_page",
			total:   23,
			perPage: 10,
			current: 1,
			want:    PageInfo{CurrentPage: 1, PerPage: 10, TotalPages: 3, TotalItems: 23},
		},
		{
			name:    "exact_fit",
			total:   20,
			perPage: 10,
			current: 2,
			want:    PageInfo{CurrentPage: 2, PerPage: 10, TotalPages: 2, TotalItems: 20},
		},
		{
			name:    "empty",
			total:   0,
			perPage: 10,
			current: 1,
			want:    PageInfo{CurrentPage: 1, PerPage: 10, TotalPages: 0, TotalItems: 0},
		},
		{
			name:    "per_page_floored_to_one",
			total:   5,
			perPage: 0,
			current: 1,
			want:    PageInfo{CurrentPage: 1, PerPage: 1, TotalPages: 5, TotalItems: 5},
		},
		{
			name:    "negative_inputs_clamped",
			total:   -3,
			perPage: -1,
			current: -2,
			want:    PageInfo{CurrentPage: 0, PerPage: 1, TotalPages: 0, TotalItems: 0},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Paginate(tt.total, tt.perPage, tt.current))
		})
	}
}

func TestDefaultPaginator(t *testing.T) {
	t.Parallel()

	got := DefaultPaginator.Paginate(23, 10, 1)
	assert.Equal(t, 3, got.TotalPages)
}
