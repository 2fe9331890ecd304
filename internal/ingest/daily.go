package ingest

import (
	"math"
	"sort"
	"time"

	"github.com/lox/pmforecast/internal/forecast"
	"github.com/lox/pmforecast/internal/models"
)

// GroupByDate buckets hourly records by local calendar day.
func GroupByDate(hourly []models.HourlyRecord, loc *time.Location) map[time.Time][]models.HourlyRecord {
	byDate := make(map[time.Time][]models.HourlyRecord)
	for _, h := range hourly {
		local := h.Time.In(loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		byDate[day] = append(byDate[day], h)
	}
	return byDate
}

// DailyStats aggregates hourly readings into daily records, newest first.
// Averages and maxima are rounded to integers. Days without any PM2.5 or
// PM10 reading are skipped; a pollutant with no readings on an otherwise
// populated day is reported as 0.
func DailyStats(hourly []models.HourlyRecord, loc *time.Location) []models.DailyRecord {
	var records []models.DailyRecord
	for day, hours := range GroupByDate(hourly, loc) {
		pm25Avg, pm25Max, n25 := aggregate(hours, func(h models.HourlyRecord) (float64, bool) {
			return h.PM25.Float64, h.PM25.Valid
		})
		pm10Avg, pm10Max, n10 := aggregate(hours, func(h models.HourlyRecord) (float64, bool) {
			return h.PM10.Float64, h.PM10.Valid
		})
		if n25 == 0 && n10 == 0 {
			continue
		}
		records = append(records, forecast.NewDailyRecord(models.DailyRecord{
			Date:    day,
			PM25Avg: pm25Avg,
			PM25Max: pm25Max,
			PM10Avg: pm10Avg,
			PM10Max: pm10Max,
		}))
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Date.After(records[j].Date)
	})
	return records
}

func aggregate(hours []models.HourlyRecord, get func(models.HourlyRecord) (float64, bool)) (avg, max float64, n int) {
	var sum float64
	max = math.Inf(-1)
	for _, h := range hours {
		v, ok := get(h)
		if !ok {
			continue
		}
		sum += v
		max = math.Max(max, v)
		n++
	}
	if n == 0 {
		return 0, 0, 0
	}
	return math.Round(sum / float64(n)), math.Round(max), n
}

// CurrentHour returns the record for the hour containing now. Failing that
// it returns the latest earlier hour with any particulate reading, and
// failing that the last record. ok is false when hourly is empty.
func CurrentHour(hourly []models.HourlyRecord, now time.Time) (models.HourlyRecord, bool) {
	if len(hourly) == 0 {
		return models.HourlyRecord{}, false
	}
	current := now.Truncate(time.Hour)

	var best *models.HourlyRecord
	for i := range hourly {
		h := &hourly[i]
		if h.Time.Equal(current) {
			return *h, true
		}
		if h.Time.After(current) || (!h.PM25.Valid && !h.PM10.Valid) {
			continue
		}
		if best == nil || h.Time.After(best.Time) {
			best = h
		}
	}
	if best != nil {
		return *best, true
	}
	return hourly[len(hourly)-1], true
}

// CityData is the materialized view of a city's air quality around today.
type CityData struct {
	City models.City
	// Day is local midnight of the current day.
	Day         time.Time
	Current     models.HourlyRecord
	HasCurrent  bool
	TodayHourly []models.HourlyRecord
	// Daily holds every aggregated day, newest first.
	Daily []models.DailyRecord
	// History holds days before today, newest first.
	History []models.DailyRecord
	// Forecast holds today and later, oldest first.
	Forecast []models.DailyRecord
	Weather  *models.WeatherObservation
}

// Today returns the record for the current day, if present.
func (c *CityData) Today() *models.DailyRecord {
	return c.forecastFor(c.Day)
}

// Tomorrow returns the baseline record for the next day, if present.
func (c *CityData) Tomorrow() *models.DailyRecord {
	return c.forecastFor(c.Day.AddDate(0, 0, 1))
}

func (c *CityData) forecastFor(day time.Time) *models.DailyRecord {
	for i := range c.Forecast {
		if c.Forecast[i].Date.Equal(day) {
			return &c.Forecast[i]
		}
	}
	return nil
}

// BuildCityData splits hourly readings around now into history, today and
// forecast views.
func BuildCityData(city models.City, hourly []models.HourlyRecord, weather *models.WeatherObservation, now time.Time, loc *time.Location) *CityData {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	tomorrow := today.AddDate(0, 0, 1)

	data := &CityData{City: city, Day: today, Weather: weather}
	data.Current, data.HasCurrent = CurrentHour(hourly, now)

	for _, h := range hourly {
		if !h.Time.Before(today) && h.Time.Before(tomorrow) {
			data.TodayHourly = append(data.TodayHourly, h)
		}
	}

	data.Daily = DailyStats(hourly, loc)
	for _, d := range data.Daily {
		if d.Date.Before(today) {
			data.History = append(data.History, d)
		} else {
			data.Forecast = append(data.Forecast, d)
		}
	}
	sort.Slice(data.Forecast, func(i, j int) bool {
		return data.Forecast[i].Date.Before(data.Forecast[j].Date)
	})
	return data
}
