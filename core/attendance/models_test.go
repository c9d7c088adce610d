package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		attended, total int
		want            float64
	}{
		{0, 0, 0},
		{1, 1, 100},
		{2, 3, 66.67},
		{1, 3, 33.33},
		{7, 8, 87.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percentage(tt.attended, tt.total), "%d/%d", tt.attended, tt.total)
	}
}

func TestCounts_Add(t *testing.T) {
	var c Counts
	for _, s := range []Status{StatusPresent, StatusLate, StatusAbsent, StatusExcused, "BOGUS"} {
		c.Add(s)
	}
	assert.Equal(t, Counts{Present: 1, Absent: 1, Late: 1, Excused: 1, Total: 4, Percentage: 50}, c)
}
