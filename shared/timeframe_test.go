package shared

import (
	"context"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func TestResolution(t *testing.T) {
	tests := []struct {
		name       string
		resolution Resolution
		want       string
		duration   time.Duration
	}{
		{"One Minute", OneMinute, "1", time.Minute},
		{"Five Minute", FiveMinute, "5", time.Minute * 5},
		{"Fifteen Minute", FifteenMinute, "15", time.Minute * 15},
	}

	for _, test := range tests {
		str := test.resolution.String()
		if str != test.want {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, str)
		}
		if test.resolution.Duration() != test.duration {
			t.Errorf("%s: expected %v, got %v", test.name, test.duration, test.resolution.Duration())
		}
	}

	res, err := ResolutionFromMinutes(5)
	assert.NoError(t, err)
	assert.Equal(t, res, FiveMinute)

	_, err = ResolutionFromMinutes(7)
	assert.Error(t, err)
}

func TestTimeOfDay(t *testing.T) {
	// Ensure wall clock times can be parsed.
	tod, err := ParseTimeOfDay("09:30:05")
	assert.NoError(t, err)
	assert.Equal(t, tod, TimeOfDay{Hour: 9, Minute: 30, Second: 5})
	assert.Equal(t, tod.String(), "09:30:05")

	_, err = ParseTimeOfDay("9h30")
	assert.Error(t, err)

	// Ensure times of day can be shifted and compared.
	shifted := TimeOfDay{Hour: 9, Minute: 30}.Add(time.Second * 5)
	assert.Equal(t, shifted, tod)
	assert.True(t, TimeOfDay{Hour: 9, Minute: 30}.Before(tod))
	assert.False(t, tod.Before(TimeOfDay{Hour: 9, Minute: 30}))

	wrapped := TimeOfDay{Hour: 23, Minute: 59, Second: 59}.Add(time.Second * 2)
	assert.Equal(t, wrapped, TimeOfDay{Hour: 0, Minute: 0, Second: 1})

	// Ensure a time of day can be placed on a date in a location.
	loc, err := time.LoadLocation(IndiaLocation)
	assert.NoError(t, err)

	day := time.Date(2024, time.January, 3, 2, 0, 0, 0, loc)
	at := tod.On(day, loc)
	assert.Equal(t, at.Format(DateLayout), "2024-01-03")
	assert.Equal(t, at.Format(TimeOfDayLayout), "09:30:05")
	assert.Equal(t, at.Location().String(), IndiaLocation)
}

func TestSleep(t *testing.T) {
	// Ensure sleep returns once the duration elapses.
	err := Sleep(context.Background(), time.Millisecond)
	assert.NoError(t, err)

	// Ensure sleep is interrupted by context cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Sleep(ctx, time.Hour)
	assert.Error(t, err)

	// Ensure a non-positive duration returns immediately.
	err = Sleep(context.Background(), 0)
	assert.NoError(t, err)
}
