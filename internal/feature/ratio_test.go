package feature

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestCbkRatio(t *testing.T) {
	tests := []struct {
		name   string
		cbk    int64
		nonCbk int64
		want   float64
	}{
		{
			name:   "no data at all",
			cbk:    0,
			nonCbk: 0,
			want:   0,
		},
		{
			name:   "only non-chargebacks",
			cbk:    0,
			nonCbk: 10,
			want:   0,
		},
		{
			name:   "only chargebacks hits the floor",
			cbk:    1,
			nonCbk: 0,
			want:   0.5,
		},
		{
			name:   "balanced counts",
			cbk:    1,
			nonCbk: 1,
			want:   0.5,
		},
		{
			name:   "quarter rate",
			cbk:    1,
			nonCbk: 3,
			want:   0.25,
		},
		{
			name:   "many chargebacks few non",
			cbk:    99,
			nonCbk: 1,
			want:   0.99,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CbkRatio(tt.cbk, tt.nonCbk); got != tt.want {
				t.Errorf("CbkRatio(%d, %d) = %v, want %v", tt.cbk, tt.nonCbk, got, tt.want)
			}
		})
	}
}

func TestCbkRatioProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("ratio is bounded in [0,1)", prop.ForAll(
		func(cbk, nonCbk int64) bool {
			r := CbkRatio(cbk, nonCbk)
			return r >= 0 && r < 1
		},
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 1_000_000),
	))

	properties.Property("ratio is zero iff cbk count is zero", prop.ForAll(
		func(cbk, nonCbk int64) bool {
			r := CbkRatio(cbk, nonCbk)
			return (r == 0) == (cbk == 0)
		},
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 1_000_000),
	))

	properties.TestingRun(t)
}

func TestRound3(t *testing.T) {
	if got := Round3(0.12345); got != 0.123 {
		t.Errorf("Round3(0.12345) = %v, want 0.123", got)
	}
	if got := Round3(0.9996); got != 1.0 {
		t.Errorf("Round3(0.9996) = %v, want 1.0", got)
	}
	if got := Round3(0); got != 0 {
		t.Errorf("Round3(0) = %v, want 0", got)
	}
}
