package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimezone(t *testing.T) {
	tests := []struct {
		name    string
		tz      string
		want    string
		wantErr bool
	}{
		{name: "UTC", tz: "UTC", want: "UTC"},
		{name: "empty string defaults to UTC", tz: "", want: "UTC"},
		{name: "Europe/Paris", tz: "Europe/Paris", want: "Europe/Paris"},
		{name: "invalid timezone", tz: "Invalid/Timezone", want: "UTC", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := ParseTimezone(tt.tz)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			require.NotNil(t, loc)
			assert.Equal(t, tt.want, loc.String())
		})
	}
}

func TestParseDate(t *testing.T) {
	paris, err := ParseTimezone("Europe/Paris")
	require.NoError(t, err)

	d, err := ParseDate("2024-03-31", paris)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 31, 0, 0, 0, 0, paris), d)
	assert.Equal(t, "2024-03-31", FormatDate(d, paris))

	d, err = ParseDate("", nil)
	require.NoError(t, err)
	assert.True(t, d.IsZero())
	assert.Equal(t, "", FormatDate(d, nil))

	_, err = ParseDate("31/03/2024", nil)
	assert.Error(t, err)
}

func TestDaysUntil(t *testing.T) {
	paris, err := ParseTimezone("Europe/Paris")
	require.NoError(t, err)
	now := time.Date(2024, time.March, 30, 22, 30, 0, 0, paris)

	tests := []struct {
		date string
		want int
	}{
		{date: "2024-03-30", want: 0},
		// Crosses the spring DST change.
		{date: "2024-04-01", want: 2},
		{date: "2024-03-01", want: -29},
	}
	for _, tt := range tests {
		d, err := ParseDate(tt.date, paris)
		require.NoError(t, err)
		assert.Equal(t, tt.want, DaysUntil(d, now, paris), tt.date)
	}
}

func TestStartOfDay(t *testing.T) {
	ts := time.Date(2024, time.June, 1, 23, 30, 0, 0, time.UTC)
	tokyo, err := ParseTimezone("Asia/Tokyo")
	require.NoError(t, err)

	// 23:30 UTC is already the next morning in Tokyo.
	assert.Equal(t, time.Date(2024, time.June, 2, 0, 0, 0, 0, tokyo), StartOfDay(ts, tokyo))
	assert.Equal(t, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), StartOfDay(ts, nil))
}
