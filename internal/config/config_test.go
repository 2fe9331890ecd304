package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pmforecast.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", c.Server.Addr)
	}
	if c.Server.PredictionTTL != 30*time.Minute {
		t.Errorf("Server.PredictionTTL = %v, want 30m", c.Server.PredictionTTL)
	}
	if c.Location().String() != "Asia/Seoul" {
		t.Errorf("Location() = %v, want Asia/Seoul", c.Location())
	}
	if got := len(c.CityList()); got != 10 {
		t.Errorf("len(CityList()) = %d, want 10", got)
	}
	if got := len(c.StationList()); got != 6 {
		t.Errorf("len(StationList()) = %d, want 6", got)
	}

	sc := c.SchedulerConfig()
	if sc.AirQualityInterval != 30*time.Minute || sc.CameraInterval != 10*time.Minute {
		t.Errorf("SchedulerConfig intervals = %v/%v, want 30m/10m", sc.AirQualityInterval, sc.CameraInterval)
	}
	if sc.PastDays != 7 || sc.ForecastDays != 7 {
		t.Errorf("SchedulerConfig days = %d/%d, want 7/7", sc.PastDays, sc.ForecastDays)
	}
	if c.Forecast.TrendWeight != 0.3 {
		t.Errorf("Forecast.TrendWeight = %v, want 0.3", c.Forecast.TrendWeight)
	}
	if c.CacheConfig().Prefix != "pmforecast" {
		t.Errorf("CacheConfig().Prefix = %q, want pmforecast", c.CacheConfig().Prefix)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
timezone: Asia/Seoul
server:
  addr: ":9090"
redis:
  addr: localhost:6379
cities:
  - {name: 서울, slug: seoul, lat: 37.5665, lon: 126.978, region: 수도권}
  - {name: 부산, slug: busan, lat: 35.1796, lon: 129.0756, region: 영남권}
cctv:
  stations:
    - id: busan-01
      city: busan
      name: 광안대교
      lat: 35.147
      lon: 129.13
      snapshot_url: https://cams.example.com/busan-01.jpg
holidays:
  - name: Spring Festival
    years:
      2031: {start: "01-15", end: "01-29"}
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", c.Server.Addr)
	}
	if c.CacheConfig().Addr != "localhost:6379" {
		t.Errorf("CacheConfig().Addr = %q, want localhost:6379", c.CacheConfig().Addr)
	}

	cities := c.CityList()
	if len(cities) != 2 || cities[1].Slug != "busan" {
		t.Fatalf("CityList() = %+v, want seoul and busan", cities)
	}

	stations := c.StationList()
	if len(stations) != 1 {
		t.Fatalf("len(StationList()) = %d, want 1", len(stations))
	}
	if stations[0].Source != "http" {
		t.Errorf("station Source = %q, want default http", stations[0].Source)
	}
	if stations[0].CitySlug != "busan" {
		t.Errorf("station CitySlug = %q, want busan", stations[0].CitySlug)
	}

	cal, err := c.HolidayCalendar()
	if err != nil {
		t.Fatalf("HolidayCalendar: %v", err)
	}
	rate, name := cal.Lookup(time.Date(2031, 1, 20, 0, 0, 0, 0, time.UTC))
	if rate != 0.2 || name != "Spring Festival" {
		t.Errorf("Lookup(2031-01-20) = %v %q, want 0.2 Spring Festival", rate, name)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "bad timezone",
			body:    "timezone: Mars/Olympus\n",
			wantErr: "timezone",
		},
		{
			name:    "past days out of range",
			body:    "ingest:\n  past_days: 93\n",
			wantErr: "PastDays",
		},
		{
			name: "duplicate city",
			body: `cities:
  - {name: a, slug: seoul, lat: 37, lon: 127}
  - {name: b, slug: seoul, lat: 35, lon: 129}
`,
			wantErr: "duplicate city",
		},
		{
			name: "station for unknown city",
			body: `cctv:
  stations:
    - {id: x, city: atlantis, name: x, lat: 1, lon: 1}
`,
			wantErr: "unknown city",
		},
		{
			name: "bad station source",
			body: `cctv:
  stations:
    - {id: x, city: seoul, name: x, lat: 1, lon: 1, source: rtsp}
`,
			wantErr: "Source",
		},
		{
			name: "new holiday without rate",
			body: `holidays:
  - name: Golden Week
    years:
      2026: {start: "04-29", end: "05-05"}
`,
			wantErr: "factory rate",
		},
		{
			name: "reversed holiday window",
			body: `holidays:
  - name: Qingming
    factory_rate: 0.6
    years:
      2026: {start: "04-06", end: "04-04"}
`,
			wantErr: "after end",
		},
		{
			name:    "bad log level",
			body:    "log:\n  level: loud\n",
			wantErr: "Level",
		},
		{
			name:    "malformed yaml",
			body:    "server: [",
			wantErr: "parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Load() returned nil error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load(missing) returned nil error")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PMFORECAST_TEST_DOTENV=loaded\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("PMFORECAST_TEST_DOTENV") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("PMFORECAST_TEST_DOTENV"); got != "loaded" {
		t.Errorf("PMFORECAST_TEST_DOTENV = %q, want loaded", got)
	}
}
