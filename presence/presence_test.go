package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDateMG(t *testing.T) {
	loc := time.FixedZone("ORG", 3*3600)

	cases := []struct {
		ts   time.Time
		want string
	}{
		{time.Date(2026, 8, 28, 10, 0, 0, 0, loc), "Zoma 28 Aogositra 2026"},
		{time.Date(2026, 1, 4, 0, 0, 0, 0, loc), "Alahady 4 Janoary 2026"},
		{time.Date(2025, 12, 25, 23, 59, 0, 0, loc), "Alakamisy 25 Desambra 2025"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatDateMG(c.ts))
	}
}
