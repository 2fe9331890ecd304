package forecast

import "github.com/lox/pmforecast/internal/models"

type gradeBand struct {
	grade    models.Grade
	min, max float64
}

// Inclusive integer bands in µg/m³.
var pm25Bands = []gradeBand{
	{models.GradeGood, 0, 15},
	{models.GradeModerate, 16, 35},
	{models.GradeBad, 36, 75},
}

var pm10Bands = []gradeBand{
	{models.GradeGood, 0, 30},
	{models.GradeModerate, 31, 80},
	{models.GradeBad, 81, 150},
}

// GradeFor classifies a concentration. Negative values are treated as good.
// Values outside every band, including fractional values that fall between
// two integer bands, are very bad.
func GradeFor(value float64, p models.Pollutant) models.Grade {
	if value < 0 {
		return models.GradeGood
	}
	bands := pm25Bands
	if p == models.PM10 {
		bands = pm10Bands
	}
	for _, b := range bands {
		if value >= b.min && value <= b.max {
			return b.grade
		}
	}
	return models.GradeVeryBad
}

// OverallGrade returns the worse of the PM2.5 and PM10 grades.
func OverallGrade(pm25, pm10 models.Grade) models.Grade {
	return pm25.Worse(pm10)
}

// NewDailyRecord builds a record whose grades are derived from its averages.
func NewDailyRecord(d models.DailyRecord) models.DailyRecord {
	d.PM25Grade = GradeFor(d.PM25Avg, models.PM25)
	d.PM10Grade = GradeFor(d.PM10Avg, models.PM10)
	d.OverallGrade = OverallGrade(d.PM25Grade, d.PM10Grade)
	return d
}
