package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var ist = time.FixedZone("IST", 5*60*60+30*60)

func TestAddClampedDate(t *testing.T) {
	tests := []struct {
		name   string
		start  time.Time
		years  int
		months int
		days   int
		want   time.Time
	}{
		{
			name:   "simple month",
			start:  time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC),
			months: 1,
			want:   time.Date(2024, time.April, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "jan 31 to leap feb",
			start:  time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
			months: 1,
			want:   time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "jan 31 to non leap feb",
			start:  time.Date(2023, time.January, 31, 0, 0, 0, 0, time.UTC),
			months: 1,
			want:   time.Date(2023, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "march 31 to april",
			start:  time.Date(2024, time.March, 31, 12, 30, 0, 0, time.UTC),
			months: 1,
			want:   time.Date(2024, time.April, 30, 12, 30, 0, 0, time.UTC),
		},
		{
			name:   "cross year",
			start:  time.Date(2024, time.November, 30, 0, 0, 0, 0, time.UTC),
			months: 3,
			want:   time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "cross several years",
			start:  time.Date(2024, time.December, 15, 0, 0, 0, 0, time.UTC),
			months: 25,
			want:   time.Date(2027, time.January, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "leap day plus a year",
			start:  time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
			years:  1,
			want:   time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "negative month",
			start:  time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
			months: -1,
			want:   time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "days cross month boundary",
			start:  time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
			days:   5,
			want:   time.Date(2024, time.April, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "keeps location",
			start:  time.Date(2024, time.January, 31, 9, 0, 0, 0, ist),
			months: 1,
			want:   time.Date(2024, time.February, 29, 9, 0, 0, 0, ist),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AddClampedDate(tt.start, tt.years, tt.months, tt.days)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestInstallmentPeriodDueDate(t *testing.T) {
	anchor := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		period InstallmentPeriod
		n      int
		want   time.Time
	}{
		{"monthly first", InstallmentPeriodMonthly, 1, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)},
		{"monthly second does not drift", InstallmentPeriodMonthly, 2, time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)},
		{"monthly third", InstallmentPeriodMonthly, 3, time.Date(2024, time.April, 30, 0, 0, 0, 0, time.UTC)},
		{"weekly", InstallmentPeriodWeekly, 2, time.Date(2024, time.February, 14, 0, 0, 0, 0, time.UTC)},
		{"quarterly", InstallmentPeriodQuarterly, 1, time.Date(2024, time.April, 30, 0, 0, 0, 0, time.UTC)},
		{"quarterly second", InstallmentPeriodQuarterly, 2, time.Date(2024, time.July, 31, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.period.DueDate(anchor, tt.n)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency(" usd ")
	assert.NoError(t, err)
	assert.Equal(t, CurrencyUSD, c)
	assert.Equal(t, int32(2), c.Precision())

	c, err = ParseCurrency("irr")
	assert.NoError(t, err)
	assert.Equal(t, int32(0), c.Precision())

	_, err = ParseCurrency("XYZ")
	assert.Error(t, err)
}
