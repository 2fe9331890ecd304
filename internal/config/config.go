// Package config loads pmforecast settings from YAML, .env files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lox/pmforecast/internal/cache"
	"github.com/lox/pmforecast/internal/cctv"
	"github.com/lox/pmforecast/internal/forecast"
	"github.com/lox/pmforecast/internal/ingest"
	"github.com/lox/pmforecast/internal/models"
)

type Config struct {
	Timezone string          `yaml:"timezone" default:"Asia/Seoul" validate:"required"`
	Server   ServerConfig    `yaml:"server"`
	Database DatabaseConfig  `yaml:"database"`
	Redis    RedisConfig     `yaml:"redis"`
	Ingest   IngestConfig    `yaml:"ingest"`
	Forecast ForecastConfig  `yaml:"forecast"`
	Cities   []CityConfig    `yaml:"cities" validate:"dive"`
	CCTV     CCTVConfig      `yaml:"cctv"`
	Holidays []HolidayConfig `yaml:"holidays" validate:"dive"`
	Log      LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" default:":8080" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	PredictionTTL   time.Duration `yaml:"prediction_ttl" default:"30m" validate:"gte=0"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" default:"data/pmforecast.db" validate:"required"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix" default:"pmforecast"`
}

type IngestConfig struct {
	AirQualityURL        string        `yaml:"air_quality_url" default:"https://air-quality-api.open-meteo.com/v1/air-quality" validate:"url"`
	WeatherURL           string        `yaml:"weather_url" default:"https://api.open-meteo.com/v1/forecast" validate:"url"`
	AirQualityInterval   time.Duration `yaml:"air_quality_interval" default:"30m" validate:"gt=0"`
	CameraInterval       time.Duration `yaml:"camera_interval" default:"10m" validate:"gt=0"`
	PastDays             int           `yaml:"past_days" default:"7" validate:"gte=1,lte=92"`
	ForecastDays         int           `yaml:"forecast_days" default:"7" validate:"gte=2,lte=7"`
	DailyJobHour         int           `yaml:"daily_job_hour" default:"6" validate:"gte=0,lte=23"`
	PayloadRetentionDays int           `yaml:"payload_retention_days" default:"30" validate:"gte=1"`
}

type ForecastConfig struct {
	TrendWeight float64 `yaml:"trend_weight" default:"0.3" validate:"gte=0,lte=1"`
}

type CityConfig struct {
	Name      string  `yaml:"name" validate:"required"`
	Slug      string  `yaml:"slug" validate:"required,lowercase"`
	Latitude  float64 `yaml:"lat" validate:"latitude"`
	Longitude float64 `yaml:"lon" validate:"longitude"`
	Region    string  `yaml:"region"`
}

type CCTVConfig struct {
	SnapshotCacheDir string          `yaml:"snapshot_cache_dir" default:"data/snapshots"`
	SnapshotMaxAge   time.Duration   `yaml:"snapshot_max_age" default:"30m"`
	Stations         []StationConfig `yaml:"stations" validate:"dive"`
}

type StationConfig struct {
	ID          string  `yaml:"id" validate:"required"`
	City        string  `yaml:"city" validate:"required"`
	Name        string  `yaml:"name" validate:"required"`
	Latitude    float64 `yaml:"lat" validate:"latitude"`
	Longitude   float64 `yaml:"lon" validate:"longitude"`
	SnapshotURL string  `yaml:"snapshot_url" validate:"omitempty,url"`
	Source      string  `yaml:"source" default:"http" validate:"oneof=http ftp its topis mock"`
	Road        string  `yaml:"road"`
}

// HolidayConfig extends or adds a holiday in the built-in calendar.
type HolidayConfig struct {
	Name        string                     `yaml:"name" validate:"required"`
	FactoryRate float64                    `yaml:"factory_rate" validate:"gte=0,lte=1"`
	Years       map[int]forecast.DateRange `yaml:"years" validate:"required,dive"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
}

// Load reads path (when set), applies defaults and validates the result.
// An empty path yields the built-in configuration.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) finish() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Validate checks field constraints and cross references between sections.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}

	slugs := make(map[string]bool)
	for _, city := range c.CityList() {
		if slugs[city.Slug] {
			return fmt.Errorf("duplicate city %q", city.Slug)
		}
		slugs[city.Slug] = true
	}
	for _, st := range c.CCTV.Stations {
		if !slugs[st.City] {
			return fmt.Errorf("station %s: unknown city %q", st.ID, st.City)
		}
	}
	if _, err := c.HolidayCalendar(); err != nil {
		return err
	}
	return nil
}

// LoadDotEnv loads variables from the given .env files, skipping any that
// do not exist. Existing environment variables win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CityList returns the configured cities, or the built-in list when none
// are configured.
func (c *Config) CityList() []models.City {
	if len(c.Cities) == 0 {
		return DefaultCities()
	}
	out := make([]models.City, len(c.Cities))
	for i, cc := range c.Cities {
		out[i] = models.City{
			Name:      cc.Name,
			Slug:      cc.Slug,
			Latitude:  cc.Latitude,
			Longitude: cc.Longitude,
			Region:    cc.Region,
		}
	}
	return out
}

// StationList returns the configured cameras, or the built-in mock cameras
// when none are configured.
func (c *Config) StationList() []models.CCTVStation {
	if len(c.CCTV.Stations) == 0 {
		return cctv.DefaultStations()
	}
	out := make([]models.CCTVStation, len(c.CCTV.Stations))
	for i, s := range c.CCTV.Stations {
		out[i] = models.CCTVStation{
			ID:          s.ID,
			CitySlug:    s.City,
			Name:        s.Name,
			Latitude:    s.Latitude,
			Longitude:   s.Longitude,
			SnapshotURL: s.SnapshotURL,
			Source:      s.Source,
			RoadName:    s.Road,
		}
	}
	return out
}

// HolidayCalendar applies the configured holidays on top of the built-in
// calendar.
func (c *Config) HolidayCalendar() (*forecast.HolidayCalendar, error) {
	cal := forecast.DefaultHolidayCalendar()
	for _, h := range c.Holidays {
		next, err := cal.Extend(h.Name, h.FactoryRate, h.Years)
		if err != nil {
			return nil, err
		}
		cal = next
	}
	return cal, nil
}

func (c *Config) SchedulerConfig() ingest.SchedulerConfig {
	return ingest.SchedulerConfig{
		AirQualityInterval:   c.Ingest.AirQualityInterval,
		CameraInterval:       c.Ingest.CameraInterval,
		PastDays:             c.Ingest.PastDays,
		ForecastDays:         c.Ingest.ForecastDays,
		DailyJobHour:         c.Ingest.DailyJobHour,
		PayloadRetentionDays: c.Ingest.PayloadRetentionDays,
	}
}

func (c *Config) CacheConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Prefix:   c.Redis.Prefix,
	}
}

// DefaultCities are the ten Korean metropolitan areas tracked out of the box.
func DefaultCities() []models.City {
	return []models.City{
		{Name: "서울", Slug: "seoul", Latitude: 37.5665, Longitude: 126.978, Region: "수도권"},
		{Name: "부산", Slug: "busan", Latitude: 35.1796, Longitude: 129.0756, Region: "영남권"},
		{Name: "대구", Slug: "daegu", Latitude: 35.8714, Longitude: 128.6014, Region: "영남권"},
		{Name: "인천", Slug: "incheon", Latitude: 37.4563, Longitude: 126.7052, Region: "수도권"},
		{Name: "광주", Slug: "gwangju", Latitude: 35.1595, Longitude: 126.8526, Region: "호남권"},
		{Name: "대전", Slug: "daejeon", Latitude: 36.3504, Longitude: 127.3845, Region: "충청권"},
		{Name: "울산", Slug: "ulsan", Latitude: 35.5384, Longitude: 129.3114, Region: "영남권"},
		{Name: "세종", Slug: "sejong", Latitude: 36.48, Longitude: 127.289, Region: "충청권"},
		{Name: "수원", Slug: "suwon", Latitude: 37.2636, Longitude: 127.0286, Region: "수도권"},
		{Name: "제주", Slug: "jeju", Latitude: 33.4996, Longitude: 126.5312, Region: "제주"},
	}
}
