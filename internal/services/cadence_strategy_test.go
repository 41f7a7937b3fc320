package services

import (
	"errors"
	"testing"

	"bollette/internal/core"
)

func TestMonthlyCadence_Period(t *testing.T) {
	c := MonthlyCadence{}

	tests := []struct {
		name      string
		date      core.Date
		wantKey   string
		wantStart core.Date
	}{
		{"first day", core.NewDate(2024, 1, 1), "2024-01", core.NewDate(2024, 1, 1)},
		{"mid month", core.NewDate(2024, 1, 15), "2024-01", core.NewDate(2024, 1, 1)},
		{"leap day", core.NewDate(2024, 2, 29), "2024-02", core.NewDate(2024, 2, 1)},
		{"december", core.NewDate(2023, 12, 31), "2023-12", core.NewDate(2023, 12, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, start := c.Period(tt.date)
			if key != tt.wantKey {
				t.Errorf("Period() key = %q, want %q", key, tt.wantKey)
			}
			if !start.Equal(tt.wantStart) {
				t.Errorf("Period() start = %s, want %s", start, tt.wantStart)
			}
		})
	}
}

func TestMonthlyCadence_DueDateClamping(t *testing.T) {
	c := MonthlyCadence{}

	want := map[int]int{
		1: 31, 2: 28, 3: 31, 4: 30, 5: 31, 6: 30,
		7: 31, 8: 31, 9: 30, 10: 31, 11: 30, 12: 31,
	}
	for m := 1; m <= 12; m++ {
		due := c.DueDate(core.NewDate(2023, m, 1), 31, core.NewDate(2023, 1, 1))
		if due.Month() != m {
			t.Errorf("month %d: due date %s rolled into another month", m, due)
		}
		if due.Day() != want[m] {
			t.Errorf("month %d: due day = %d, want %d", m, due.Day(), want[m])
		}
	}

	if got := c.DueDate(core.NewDate(2024, 2, 1), 31, core.NewDate(2024, 1, 1)); !got.Equal(core.NewDate(2024, 2, 29)) {
		t.Errorf("leap February due date = %s, want 2024-02-29", got)
	}
}

func TestQuarterlyCadence_Alignment(t *testing.T) {
	c := QuarterlyCadence{}

	for d := core.NewDate(2024, 1, 1); d.Year() == 2024; d = core.NewDate(d.Year(), d.Month(), d.Day()+1) {
		key, start := c.Period(d)
		q := (d.Month()-1)/3 + 1
		wantKey := []string{"", "2024-Q1", "2024-Q2", "2024-Q3", "2024-Q4"}[q]
		if key != wantKey {
			t.Fatalf("Period(%s) key = %q, want %q", d, key, wantKey)
		}
		if start.Day() != 1 || start.Month() != (q-1)*3+1 {
			t.Fatalf("Period(%s) start = %s, want first day of the quarter", d, start)
		}
	}
}

func TestQuarterlyCadence_Next(t *testing.T) {
	c := QuarterlyCadence{}

	got := c.Next(core.NewDate(2024, 10, 1))
	if !got.Equal(core.NewDate(2025, 1, 1)) {
		t.Errorf("Next(2024-10-01) = %s, want 2025-01-01", got)
	}
}

func TestYearlyCadence_Anniversary(t *testing.T) {
	c := YearlyCadence{}
	start := core.NewDate(2024, 2, 29)

	tests := []struct {
		year int
		want core.Date
	}{
		{2024, core.NewDate(2024, 2, 29)},
		{2025, core.NewDate(2025, 2, 28)},
		{2027, core.NewDate(2027, 2, 28)},
		{2028, core.NewDate(2028, 2, 29)},
	}

	for _, tt := range tests {
		key, periodStart := c.Period(core.NewDate(tt.year, 6, 1))
		if key != core.NewDate(tt.year, 1, 1).Format("2006") {
			t.Errorf("Period key = %q for year %d", key, tt.year)
		}
		// dayOfMonth is ignored for yearly schedules.
		got := c.DueDate(periodStart, 1, start)
		if !got.Equal(tt.want) {
			t.Errorf("DueDate(%d) = %s, want %s", tt.year, got, tt.want)
		}
	}
}

func TestGetCadence(t *testing.T) {
	tests := []struct {
		freq    core.Frequency
		want    Cadence
		wantErr bool
	}{
		{core.Monthly, MonthlyCadence{}, false},
		{core.Quarterly, QuarterlyCadence{}, false},
		{core.Yearly, YearlyCadence{}, false},
		{core.Frequency("weekly"), nil, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			got, err := GetCadence(tt.freq)
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidFrequency) {
					t.Fatalf("GetCadence() error = %v, want ErrInvalidFrequency", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetCadence() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("GetCadence() = %T, want %T", got, tt.want)
			}
		})
	}
}

func TestRegisterCadence(t *testing.T) {
	custom := core.Frequency("biannual")
	RegisterCadence(custom, QuarterlyCadence{})
	defer delete(cadenceStrategies, custom)

	if _, err := GetCadence(custom); err != nil {
		t.Errorf("registered cadence not found: %v", err)
	}
}

func TestPeriodForAndResolveDueDate(t *testing.T) {
	key, start, err := PeriodFor(core.Quarterly, core.NewDate(2024, 5, 20))
	if err != nil {
		t.Fatalf("PeriodFor() error: %v", err)
	}
	if key != "2024-Q2" || !start.Equal(core.NewDate(2024, 4, 1)) {
		t.Errorf("PeriodFor() = %q, %s", key, start)
	}

	due, err := ResolveDueDate(core.Quarterly, start, 31, core.NewDate(2024, 5, 20))
	if err != nil {
		t.Fatalf("ResolveDueDate() error: %v", err)
	}
	if !due.Equal(core.NewDate(2024, 4, 30)) {
		t.Errorf("ResolveDueDate() = %s, want 2024-04-30", due)
	}

	if _, _, err := PeriodFor(core.Frequency("daily"), start); err == nil {
		t.Error("PeriodFor() should reject unknown frequencies")
	}
}

func TestProjectNext(t *testing.T) {
	s := &core.Schedule{DayOfMonth: 31, StartDate: core.NewDate(2024, 1, 15)}

	got := projectNext(MonthlyCadence{}, core.NewDate(2024, 1, 31), s)
	if !got.Equal(core.NewDate(2024, 2, 29)) {
		t.Errorf("projectNext(monthly) = %s, want 2024-02-29", got)
	}

	got = projectNext(YearlyCadence{}, core.NewDate(2024, 1, 15), s)
	if !got.Equal(core.NewDate(2025, 1, 15)) {
		t.Errorf("projectNext(yearly) = %s, want 2025-01-15", got)
	}
}
