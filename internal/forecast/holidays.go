package forecast

import (
	"fmt"
	"time"
)

// DateRange is an inclusive month-day window written as "MM-DD".
type DateRange struct {
	Start string `yaml:"start" validate:"required,len=5"`
	End   string `yaml:"end" validate:"required,len=5"`
}

// Contains reports whether t's month and day fall inside the window.
func (r DateRange) Contains(t time.Time) bool {
	md := t.Format("01-02")
	return md >= r.Start && md <= r.End
}

// HolidayRule describes one multi-day holiday that cuts factory output.
// A rule either has a fixed window that repeats every year or a per-year
// table for holidays that follow the lunar calendar.
type HolidayRule struct {
	Name        string
	FactoryRate float64
	Fixed       *DateRange
	ByYear      map[int]DateRange
}

// window returns the rule's date range for a year, if it has one.
func (r HolidayRule) window(year int) (DateRange, bool) {
	if r.Fixed != nil {
		return *r.Fixed, true
	}
	dr, ok := r.ByYear[year]
	return dr, ok
}

// HolidayCalendar is an ordered list of holiday rules. The first matching
// rule wins, so order encodes priority.
type HolidayCalendar struct {
	rules []HolidayRule
}

// NewHolidayCalendar builds a calendar from rules in priority order.
func NewHolidayCalendar(rules ...HolidayRule) *HolidayCalendar {
	return &HolidayCalendar{rules: rules}
}

// Rules returns a copy of the calendar's rules.
func (c *HolidayCalendar) Rules() []HolidayRule {
	out := make([]HolidayRule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Extend adds per-year windows to an existing rule, or appends a new rule
// when name is unknown. It returns a new calendar; c is unchanged.
func (c *HolidayCalendar) Extend(name string, factoryRate float64, byYear map[int]DateRange) (*HolidayCalendar, error) {
	if factoryRate < 0 || factoryRate > 1 {
		return nil, fmt.Errorf("holiday %s: factory rate %.2f out of range", name, factoryRate)
	}
	for year, dr := range byYear {
		if dr.Start > dr.End {
			return nil, fmt.Errorf("holiday %s %d: start %s after end %s", name, year, dr.Start, dr.End)
		}
	}

	rules := make([]HolidayRule, 0, len(c.rules)+1)
	found := false
	for _, r := range c.rules {
		if r.Name == name {
			found = true
			merged := make(map[int]DateRange, len(r.ByYear)+len(byYear))
			for y, dr := range r.ByYear {
				merged[y] = dr
			}
			for y, dr := range byYear {
				merged[y] = dr
			}
			r.ByYear = merged
			if factoryRate > 0 {
				r.FactoryRate = factoryRate
			}
		}
		rules = append(rules, r)
	}
	if !found {
		if factoryRate == 0 {
			return nil, fmt.Errorf("holiday %s: new holiday needs a factory rate", name)
		}
		rules = append(rules, HolidayRule{Name: name, FactoryRate: factoryRate, ByYear: byYear})
	}
	return &HolidayCalendar{rules: rules}, nil
}

// Lookup returns the factory-rate multiplier for date and the matching
// holiday name. Dates outside every holiday return 1.0 and "".
func (c *HolidayCalendar) Lookup(date time.Time) (float64, string) {
	if c != nil {
		for _, r := range c.rules {
			if dr, ok := r.window(date.Year()); ok && dr.Contains(date) {
				return r.FactoryRate, r.Name
			}
		}
	}
	return 1.0, ""
}

// Built-in tables. Lunar holidays are kept as solar dates per year rather
// than converted, and cover 2024-2030.
var (
	springFestival = map[int]DateRange{
		2024: {"02-03", "02-17"},
		2025: {"01-22", "02-05"},
		2026: {"02-10", "02-24"},
		2027: {"01-30", "02-13"},
		2028: {"01-19", "02-02"},
		2029: {"02-06", "02-20"},
		2030: {"01-26", "02-09"},
	}

	dragonBoat = map[int]DateRange{
		2024: {"06-08", "06-10"},
		2025: {"05-29", "05-31"},
		2026: {"06-17", "06-19"},
		2027: {"06-06", "06-08"},
		2028: {"05-26", "05-28"},
		2029: {"06-13", "06-15"},
		2030: {"06-03", "06-05"},
	}

	midAutumn = map[int]DateRange{
		2024: {"09-15", "09-17"},
		2025: {"10-04", "10-06"},
		2026: {"09-23", "09-25"},
		2027: {"09-12", "09-14"},
		2028: {"10-01", "10-03"},
		2029: {"09-21", "09-23"},
		2030: {"09-11", "09-13"},
	}
)

// DefaultHolidayCalendar returns the built-in calendar of major Chinese
// holidays in match priority order.
func DefaultHolidayCalendar() *HolidayCalendar {
	return NewHolidayCalendar(
		HolidayRule{Name: "Spring Festival", FactoryRate: 0.2, ByYear: springFestival},
		HolidayRule{Name: "National Day", FactoryRate: 0.3, Fixed: &DateRange{"10-01", "10-07"}},
		HolidayRule{Name: "Labor Day", FactoryRate: 0.5, Fixed: &DateRange{"05-01", "05-05"}},
		HolidayRule{Name: "Qingming", FactoryRate: 0.6, Fixed: &DateRange{"04-04", "04-06"}},
		HolidayRule{Name: "Dragon Boat", FactoryRate: 0.6, ByYear: dragonBoat},
		HolidayRule{Name: "Mid-Autumn", FactoryRate: 0.5, ByYear: midAutumn},
	)
}
