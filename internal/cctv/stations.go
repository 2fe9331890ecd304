// Package cctv fetches road camera snapshots and turns them into haze analyses.
package cctv

import (
	"github.com/lox/pmforecast/internal/models"
)

const (
	SourceMock  = "mock"
	SourceHTTP  = "http"
	SourceFTP   = "ftp"
	SourceITS   = "its"
	SourceTOPIS = "topis"
)

// Registry maps city slugs to the cameras covering them.
type Registry struct {
	byCity map[string][]models.CCTVStation
}

func NewRegistry(stations []models.CCTVStation) *Registry {
	r := &Registry{byCity: make(map[string][]models.CCTVStation)}
	for _, s := range stations {
		r.byCity[s.CitySlug] = append(r.byCity[s.CitySlug], s)
	}
	return r
}

// ForCity returns the stations registered for slug, or nil.
func (r *Registry) ForCity(slug string) []models.CCTVStation {
	return r.byCity[slug]
}

// HasSupport reports whether any camera covers slug.
func (r *Registry) HasSupport(slug string) bool {
	return len(r.byCity[slug]) > 0
}

// DefaultStations are road cameras near Seoul's main air quality monitors.
// They have no live feed and are analysed in mock mode.
func DefaultStations() []models.CCTVStation {
	return []models.CCTVStation{
		{ID: "seoul-gangnam-01", CitySlug: "seoul", Name: "강남대로 (신논현역)", Latitude: 37.5045, Longitude: 127.025, Source: SourceMock, RoadName: "강남대로"},
		{ID: "seoul-jongno-01", CitySlug: "seoul", Name: "종로 (광화문)", Latitude: 37.5717, Longitude: 126.9768, Source: SourceMock, RoadName: "세종대로"},
		{ID: "seoul-yeongdeungpo-01", CitySlug: "seoul", Name: "영등포 (여의대로)", Latitude: 37.5219, Longitude: 126.9245, Source: SourceMock, RoadName: "여의대로"},
		{ID: "seoul-songpa-01", CitySlug: "seoul", Name: "송파 (올림픽대로)", Latitude: 37.5145, Longitude: 127.1059, Source: SourceMock, RoadName: "올림픽대로"},
		{ID: "seoul-mapo-01", CitySlug: "seoul", Name: "마포 (마포대로)", Latitude: 37.5397, Longitude: 126.9458, Source: SourceMock, RoadName: "마포대로"},
		{ID: "seoul-nowon-01", CitySlug: "seoul", Name: "노원 (동일로)", Latitude: 37.6543, Longitude: 127.0568, Source: SourceMock, RoadName: "동일로"},
	}
}
