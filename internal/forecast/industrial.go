package forecast

import (
	"database/sql"
	"math"
	"strings"
	"time"

	"github.com/lox/pmforecast/internal/models"
)

// Factory utilisation by weekday, Sunday first.
var weekdayFactoryRate = [7]float64{
	time.Sunday:    0.4,
	time.Monday:    1.0,
	time.Tuesday:   1.0,
	time.Wednesday: 1.0,
	time.Thursday:  1.0,
	time.Friday:    0.9,
	time.Saturday:  0.6,
}

// Heating-season multiplier by calendar month.
var seasonalFactor = [13]float64{
	time.January:   1.3,
	time.February:  1.25,
	time.March:     1.15,
	time.April:     1.0,
	time.May:       0.85,
	time.June:      0.75,
	time.July:      0.7,
	time.August:    0.7,
	time.September: 0.8,
	time.October:   0.95,
	time.November:  1.1,
	time.December:  1.25,
}

const defaultWindSpeed = 3.0

const noSpecialCorrection = "no special correction"

// WeekdayRate blends yesterday's and today's factory rate. Emissions take
// one to two days to arrive, so yesterday carries more weight.
func WeekdayRate(date time.Time) float64 {
	today := date.Weekday()
	yesterday := (today + 6) % 7
	return weekdayFactoryRate[yesterday]*0.6 + weekdayFactoryRate[today]*0.4
}

// SeasonalFactor returns the heating-season multiplier for the month.
func SeasonalFactor(month time.Month) float64 {
	if month < time.January || month > time.December {
		return 1.0
	}
	return seasonalFactor[month]
}

// WindResult is the transport correction and a short description.
type WindResult struct {
	Factor      float64
	Description string
}

// WindFactor rates how much upwind industrial air the wind carries in.
// Without a direction there is no correction.
func WindFactor(direction, speed sql.NullFloat64) WindResult {
	if !direction.Valid {
		return WindResult{Factor: 1.0, Description: "no wind direction data"}
	}

	dir := math.Mod(math.Mod(direction.Float64, 360)+360, 360)
	spd := defaultWindSpeed
	if speed.Valid {
		spd = speed.Float64
	}

	var dirFactor float64
	var desc string
	switch {
	case dir >= 240 && dir <= 300:
		dirFactor, desc = 1.3, "westerly (strong upwind transport)"
	case dir > 300 && dir <= 340:
		dirFactor, desc = 1.15, "north-westerly (moderate upwind transport)"
	case dir >= 210 && dir < 240:
		dirFactor, desc = 1.15, "south-westerly (moderate upwind transport)"
	case dir > 340 || dir < 30:
		dirFactor, desc = 1.05, "northerly (weak upwind transport)"
	case dir < 150:
		dirFactor, desc = 0.85, "easterly (maritime air)"
	default:
		dirFactor, desc = 0.85, "southerly (maritime air)"
	}

	speedMultiplier := 1.0
	if dirFactor > 1.1 {
		switch {
		case spd >= 3 && spd <= 7:
			speedMultiplier = 1.15
		case spd < 2:
			speedMultiplier = 0.9
		case spd > 10:
			speedMultiplier = 0.7
		}
	} else {
		switch {
		case spd < 2:
			speedMultiplier = 1.2
		case spd > 7:
			speedMultiplier = 0.8
		}
	}

	switch {
	case spd < 2:
		desc += ", light wind"
	case spd > 7:
		desc += ", strong wind"
	}

	return WindResult{Factor: round2(dirFactor * speedMultiplier), Description: desc}
}

// IndustrialInput holds the signals for the industrial-activity model.
type IndustrialInput struct {
	Date          time.Time
	WindDirection sql.NullFloat64
	WindSpeed     sql.NullFloat64
}

// IndustrialModel estimates how upwind factory activity shifts tomorrow's
// particulate load.
type IndustrialModel struct {
	holidays *HolidayCalendar
}

func NewIndustrialModel(holidays *HolidayCalendar) *IndustrialModel {
	if holidays == nil {
		holidays = DefaultHolidayCalendar()
	}
	return &IndustrialModel{holidays: holidays}
}

// Compute returns the combined factor and its breakdown. The combined factor
// is not clamped; each sub-factor is bounded by its table.
func (m *IndustrialModel) Compute(in IndustrialInput) models.IndustrialBreakdown {
	weekday := WeekdayRate(in.Date)
	seasonal := SeasonalFactor(in.Date.Month())
	holiday, holidayName := m.holidays.Lookup(in.Date)
	wind := WindFactor(in.WindDirection, in.WindSpeed)

	weekdayComponent := 0.85 + weekday*0.15
	combined := seasonal * wind.Factor * holiday * weekdayComponent

	var clauses []string
	if seasonal > 1.1 {
		clauses = append(clauses, "winter heating emissions")
	} else if seasonal < 0.8 {
		clauses = append(clauses, "clean summer air flow")
	}
	if wind.Factor > 1.1 || wind.Factor < 0.9 {
		clauses = append(clauses, wind.Description)
	}
	if holidayName != "" {
		clauses = append(clauses, holidayName+" holiday (reduced factory output)")
	}
	if weekday < 0.5 {
		clauses = append(clauses, "weekend factory slowdown")
	}

	summary := noSpecialCorrection
	if len(clauses) > 0 {
		summary = strings.Join(clauses, ", ")
	}

	return models.IndustrialBreakdown{
		CombinedFactor:  round2(combined),
		WeekdayRate:     round2(weekday),
		SeasonalFactor:  seasonal,
		WindFactor:      wind.Factor,
		WindDescription: wind.Description,
		HolidayName:     holidayName,
		HolidayFactor:   holiday,
		Summary:         summary,
	}
}
