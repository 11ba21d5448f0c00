package shared

import (
	"testing"

	"github.com/peterldowns/testy/assert"
)

func TestDirectionString(t *testing.T) {
	assert.Equal(t, None.String(), "none")
	assert.Equal(t, Call.String(), "CE")
	assert.Equal(t, Put.String(), "PE")
}

func TestClassify(t *testing.T) {
	high := float64(21100)
	low := float64(20950)

	tests := []struct {
		name  string
		price float64
		want  Direction
	}{
		{"above high", 21101, Call},
		{"below low", 20949.5, Put},
		{"inside range", 21000, None},
		{"equal to high", high, None},
		{"equal to low", low, None},
	}

	for _, test := range tests {
		got := Classify(test.price, high, low)
		if got != test.want {
			t.Errorf("%s: expected %s, got %s", test.name, test.want.String(), got.String())
		}
	}

	// Ensure classification only reports a breakout strictly outside the range.
	for price := low - 50; price <= high+50; price += 0.5 {
		got := Classify(price, high, low)
		switch {
		case got == Call:
			assert.True(t, price > high)
		case got == Put:
			assert.True(t, price < low)
		default:
			assert.True(t, price >= low && price <= high)
		}
	}
}
