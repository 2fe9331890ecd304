package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/pmforecast/internal/models"
)

const dateLayout = "2006-01-02"

type Store struct {
	db  *sql.DB
	loc *time.Location
}

func New(db *sql.DB, loc *time.Location) *Store {
	return &Store{db: db, loc: loc}
}

// dateKey formats t as a calendar date in the store's timezone.
func (s *Store) dateKey(t time.Time) string {
	return t.In(s.loc).Format(dateLayout)
}

func (s *Store) parseDate(v string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, v, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", v, err)
	}
	return d, nil
}

func (s *Store) UpsertCity(c models.City) error {
	_, err := s.db.Exec(`
		INSERT INTO cities (slug, name, latitude, longitude, region)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			region = excluded.region
	`, c.Slug, c.Name, c.Latitude, c.Longitude, c.Region)
	return err
}

func (s *Store) GetCities() ([]models.City, error) {
	rows, err := s.db.Query(`SELECT slug, name, latitude, longitude, region FROM cities ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cities []models.City
	for rows.Next() {
		var c models.City
		var region sql.NullString
		if err := rows.Scan(&c.Slug, &c.Name, &c.Latitude, &c.Longitude, &region); err != nil {
			return nil, err
		}
		c.Region = region.String
		cities = append(cities, c)
	}
	return cities, rows.Err()
}

// GetCity returns nil, nil when the slug is unknown.
func (s *Store) GetCity(slug string) (*models.City, error) {
	var c models.City
	var region sql.NullString
	err := s.db.QueryRow(`SELECT slug, name, latitude, longitude, region FROM cities WHERE slug = ?`, slug).
		Scan(&c.Slug, &c.Name, &c.Latitude, &c.Longitude, &region)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Region = region.String
	return &c, nil
}

// UpsertHourlyRecords stores hourly readings, replacing earlier values for
// the same hour. Forecast hours are refreshed on every ingest.
func (s *Store) UpsertHourlyRecords(citySlug string, records []models.HourlyRecord, flags map[time.Time]string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO hourly_records (city_slug, observed_at, pm25, pm10, no2, so2, co, quality_flags, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(city_slug, observed_at) DO UPDATE SET
			pm25 = excluded.pm25,
			pm10 = excluded.pm10,
			no2 = excluded.no2,
			so2 = excluded.so2,
			co = excluded.co,
			quality_flags = excluded.quality_flags,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		var qf sql.NullString
		if f := flags[r.Time]; f != "" {
			qf = sql.NullString{String: f, Valid: true}
		}
		if _, err := stmt.Exec(citySlug, r.Time.UTC(), r.PM25, r.PM10, r.NO2, r.SO2, r.CO, qf, now); err != nil {
			return 0, fmt.Errorf("upsert hourly %s: %w", r.Time.Format(time.RFC3339), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(records), nil
}

// GetHourlyRecords returns readings in [start, end] ordered by time.
func (s *Store) GetHourlyRecords(citySlug string, start, end time.Time) ([]models.HourlyRecord, error) {
	rows, err := s.db.Query(`
		SELECT observed_at, pm25, pm10, no2, so2, co
		FROM hourly_records
		WHERE city_slug = ? AND observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at ASC
	`, citySlug, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.HourlyRecord
	for rows.Next() {
		var r models.HourlyRecord
		if err := rows.Scan(&r.Time, &r.PM25, &r.PM10, &r.NO2, &r.SO2, &r.CO); err != nil {
			return nil, err
		}
		r.Time = r.Time.In(s.loc)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) UpsertDailyRecord(citySlug string, d models.DailyRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO daily_records (city_slug, date, pm25_avg, pm25_max, pm10_avg, pm10_max, pm25_grade, pm10_grade, overall_grade)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(city_slug, date) DO UPDATE SET
			pm25_avg = excluded.pm25_avg,
			pm25_max = excluded.pm25_max,
			pm10_avg = excluded.pm10_avg,
			pm10_max = excluded.pm10_max,
			pm25_grade = excluded.pm25_grade,
			pm10_grade = excluded.pm10_grade,
			overall_grade = excluded.overall_grade
	`, citySlug, s.dateKey(d.Date), d.PM25Avg, d.PM25Max, d.PM10Avg, d.PM10Max,
		d.PM25Grade.String(), d.PM10Grade.String(), d.OverallGrade.String())
	return err
}

// GetDailyRecords returns daily records between start and end inclusive,
// oldest first.
func (s *Store) GetDailyRecords(citySlug string, start, end time.Time) ([]models.DailyRecord, error) {
	rows, err := s.db.Query(`
		SELECT date, pm25_avg, pm25_max, pm10_avg, pm10_max, pm25_grade, pm10_grade, overall_grade
		FROM daily_records
		WHERE city_slug = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, citySlug, s.dateKey(start), s.dateKey(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.DailyRecord
	for rows.Next() {
		var d models.DailyRecord
		var date, g25, g10, overall string
		if err := rows.Scan(&date, &d.PM25Avg, &d.PM25Max, &d.PM10Avg, &d.PM10Max, &g25, &g10, &overall); err != nil {
			return nil, err
		}
		if d.Date, err = s.parseDate(date); err != nil {
			return nil, err
		}
		if d.PM25Grade, err = models.ParseGrade(g25); err != nil {
			return nil, err
		}
		if d.PM10Grade, err = models.ParseGrade(g10); err != nil {
			return nil, err
		}
		if d.OverallGrade, err = models.ParseGrade(overall); err != nil {
			return nil, err
		}
		records = append(records, d)
	}
	return records, rows.Err()
}

func (s *Store) UpsertWeatherObservation(citySlug string, w models.WeatherObservation, flags string) error {
	var qf sql.NullString
	if flags != "" {
		qf = sql.NullString{String: flags, Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO weather_observations (city_slug, observed_at, wind_direction, wind_speed, temperature, humidity,
		    precipitation, precipitation_probability, pressure_msl, surface_pressure, cloud_cover, quality_flags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(city_slug, observed_at) DO UPDATE SET
			wind_direction = excluded.wind_direction,
			wind_speed = excluded.wind_speed,
			temperature = excluded.temperature,
			humidity = excluded.humidity,
			precipitation = excluded.precipitation,
			precipitation_probability = excluded.precipitation_probability,
			pressure_msl = excluded.pressure_msl,
			surface_pressure = excluded.surface_pressure,
			cloud_cover = excluded.cloud_cover,
			quality_flags = excluded.quality_flags
	`, citySlug, w.ObservedAt.UTC(), w.WindDirection, w.WindSpeed, w.Temperature, w.Humidity,
		w.Precipitation, w.PrecipitationProbability, w.PressureMSL, w.SurfacePressure, w.CloudCover, qf)
	return err
}

// GetLatestWeather returns the most recent observation at or before at, or
// nil if none exists.
func (s *Store) GetLatestWeather(citySlug string, at time.Time) (*models.WeatherObservation, error) {
	var w models.WeatherObservation
	err := s.db.QueryRow(`
		SELECT observed_at, wind_direction, wind_speed, temperature, humidity, precipitation,
		    precipitation_probability, pressure_msl, surface_pressure, cloud_cover
		FROM weather_observations
		WHERE city_slug = ? AND observed_at <= ?
		ORDER BY observed_at DESC
		LIMIT 1
	`, citySlug, at.UTC()).Scan(&w.ObservedAt, &w.WindDirection, &w.WindSpeed, &w.Temperature, &w.Humidity,
		&w.Precipitation, &w.PrecipitationProbability, &w.PressureMSL, &w.SurfacePressure, &w.CloudCover)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.ObservedAt = w.ObservedAt.In(s.loc)
	return &w, nil
}

func (s *Store) InsertVisualAnalyses(citySlug string, analyses []models.VisualAnalysisResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range analyses {
		m := a.Metrics
		if _, err := tx.Exec(`
			INSERT INTO visual_analyses (city_slug, station_id, station_name, analyzed_at, snapshot_url,
			    contrast, edge_density, color_shift, brightness, brightness_uniformity, haziness,
			    visibility_grade, estimated_pm25_min, estimated_pm25_max, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(station_id, analyzed_at) DO NOTHING
		`, citySlug, a.StationID, a.StationName, a.Timestamp.UTC(), a.SnapshotURL,
			m.Contrast, m.EdgeDensity, m.ColorShift, m.Brightness, m.BrightnessUniformity, m.Haziness,
			a.VisibilityGrade.String(), a.EstimatedPM25.Min, a.EstimatedPM25.Max, a.Confidence); err != nil {
			return fmt.Errorf("insert analysis %s: %w", a.StationID, err)
		}
	}
	return tx.Commit()
}

// GetLatestVisualAnalyses returns the newest analysis of each station in the
// city taken after since.
func (s *Store) GetLatestVisualAnalyses(citySlug string, since time.Time) ([]models.VisualAnalysisResult, error) {
	rows, err := s.db.Query(`
		SELECT v.station_id, v.station_name, v.analyzed_at, v.snapshot_url,
		    v.contrast, v.edge_density, v.color_shift, v.brightness, v.brightness_uniformity, v.haziness,
		    v.visibility_grade, v.estimated_pm25_min, v.estimated_pm25_max, v.confidence
		FROM visual_analyses v
		JOIN (
			SELECT station_id, MAX(analyzed_at) AS latest
			FROM visual_analyses
			WHERE city_slug = ? AND analyzed_at >= ?
			GROUP BY station_id
		) l ON v.station_id = l.station_id AND v.analyzed_at = l.latest
		ORDER BY v.station_id
	`, citySlug, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.VisualAnalysisResult
	for rows.Next() {
		var a models.VisualAnalysisResult
		var name, url sql.NullString
		var grade string
		m := &a.Metrics
		if err := rows.Scan(&a.StationID, &name, &a.Timestamp, &url,
			&m.Contrast, &m.EdgeDensity, &m.ColorShift, &m.Brightness, &m.BrightnessUniformity, &m.Haziness,
			&grade, &a.EstimatedPM25.Min, &a.EstimatedPM25.Max, &a.Confidence); err != nil {
			return nil, err
		}
		a.StationName = name.String
		a.SnapshotURL = url.String
		a.Timestamp = a.Timestamp.In(s.loc)
		if a.VisibilityGrade, err = models.ParseGrade(grade); err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// StoredPrediction is a prediction persisted for a target date.
type StoredPrediction struct {
	CitySlug   string
	TargetDate time.Time
	ComputedAt time.Time
	Result     models.PredictionResult
}

func (s *Store) UpsertPrediction(citySlug string, target time.Time, computedAt time.Time, p models.PredictionResult) error {
	breakdown, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prediction: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO predictions (city_slug, target_date, computed_at, grade, trend, pm25, pm10, blend_ratio, total_factor, message, breakdown_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(city_slug, target_date) DO UPDATE SET
			computed_at = excluded.computed_at,
			grade = excluded.grade,
			trend = excluded.trend,
			pm25 = excluded.pm25,
			pm10 = excluded.pm10,
			blend_ratio = excluded.blend_ratio,
			total_factor = excluded.total_factor,
			message = excluded.message,
			breakdown_json = excluded.breakdown_json
	`, citySlug, s.dateKey(target), computedAt.UTC(), p.TomorrowGrade.String(), string(p.Trend),
		p.PredictedPM25, p.PredictedPM10, p.BlendRatio, p.TotalFactor, p.Message, string(breakdown))
	return err
}

// GetPrediction returns nil, nil when no prediction exists for the date.
func (s *Store) GetPrediction(citySlug string, target time.Time) (*StoredPrediction, error) {
	var sp StoredPrediction
	var date, breakdown string
	err := s.db.QueryRow(`
		SELECT city_slug, target_date, computed_at, breakdown_json
		FROM predictions
		WHERE city_slug = ? AND target_date = ?
	`, citySlug, s.dateKey(target)).Scan(&sp.CitySlug, &date, &sp.ComputedAt, &breakdown)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sp.TargetDate, err = s.parseDate(date); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(breakdown), &sp.Result); err != nil {
		return nil, fmt.Errorf("unmarshal prediction: %w", err)
	}
	return &sp, nil
}

// PredictionOutcome pairs a stored prediction with the observed daily
// average for its target date.
type PredictionOutcome struct {
	TargetDate    time.Time    `json:"targetDate"`
	PredictedPM25 float64      `json:"predictedPm25"`
	ActualPM25    float64      `json:"actualPm25"`
	PredictedPM10 float64      `json:"predictedPm10"`
	ActualPM10    float64      `json:"actualPm10"`
	Grade         models.Grade `json:"grade"`
	ActualGrade   models.Grade `json:"actualGrade"`
}

// GetPredictionOutcomes joins past predictions with what was observed.
func (s *Store) GetPredictionOutcomes(citySlug string, limit int) ([]PredictionOutcome, error) {
	rows, err := s.db.Query(`
		SELECT p.target_date, p.pm25, d.pm25_avg, p.pm10, d.pm10_avg, p.grade, d.overall_grade
		FROM predictions p
		JOIN daily_records d ON d.city_slug = p.city_slug AND d.date = p.target_date
		WHERE p.city_slug = ?
		ORDER BY p.target_date DESC
		LIMIT ?
	`, citySlug, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []PredictionOutcome
	for rows.Next() {
		var o PredictionOutcome
		var date, grade, actual string
		if err := rows.Scan(&date, &o.PredictedPM25, &o.ActualPM25, &o.PredictedPM10, &o.ActualPM10, &grade, &actual); err != nil {
			return nil, err
		}
		if o.TargetDate, err = s.parseDate(date); err != nil {
			return nil, err
		}
		if o.Grade, err = models.ParseGrade(grade); err != nil {
			return nil, err
		}
		if o.ActualGrade, err = models.ParseGrade(actual); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (s *Store) UpsertAccuracy(citySlug string, date time.Time, a models.AccuracyResult) error {
	_, err := s.db.Exec(`
		INSERT INTO accuracy_snapshots (city_slug, date, pm25_accuracy, pm10_accuracy, overall_accuracy, grade_match_rate, sample_days)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(city_slug, date) DO UPDATE SET
			pm25_accuracy = excluded.pm25_accuracy,
			pm10_accuracy = excluded.pm10_accuracy,
			overall_accuracy = excluded.overall_accuracy,
			grade_match_rate = excluded.grade_match_rate,
			sample_days = excluded.sample_days
	`, citySlug, s.dateKey(date), a.PM25Accuracy, a.PM10Accuracy, a.OverallAccuracy, a.GradeMatchRate, a.SampleDays)
	return err
}

// AccuracySnapshot is the backtest score recorded on a given day.
type AccuracySnapshot struct {
	Date time.Time `json:"date"`
	models.AccuracyResult
}

// GetAccuracyHistory returns up to limit snapshots, newest first.
func (s *Store) GetAccuracyHistory(citySlug string, limit int) ([]AccuracySnapshot, error) {
	rows, err := s.db.Query(`
		SELECT date, pm25_accuracy, pm10_accuracy, overall_accuracy, grade_match_rate, sample_days
		FROM accuracy_snapshots
		WHERE city_slug = ?
		ORDER BY date DESC
		LIMIT ?
	`, citySlug, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []AccuracySnapshot
	for rows.Next() {
		var a AccuracySnapshot
		var date string
		if err := rows.Scan(&date, &a.PM25Accuracy, &a.PM10Accuracy, &a.OverallAccuracy, &a.GradeMatchRate, &a.SampleDays); err != nil {
			return nil, err
		}
		if a.Date, err = s.parseDate(date); err != nil {
			return nil, err
		}
		history = append(history, a)
	}
	return history, rows.Err()
}
