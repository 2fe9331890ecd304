package models

import (
	"encoding/json"
	"fmt"
)

// Grade is an ordinal air quality category. The zero value is GradeGood.
type Grade int

const (
	GradeGood Grade = iota
	GradeModerate
	GradeBad
	GradeVeryBad
)

var gradeNames = map[Grade]string{
	GradeGood:     "good",
	GradeModerate: "moderate",
	GradeBad:      "bad",
	GradeVeryBad:  "veryBad",
}

var gradeLabels = map[Grade]string{
	GradeGood:     "좋음",
	GradeModerate: "보통",
	GradeBad:      "나쁨",
	GradeVeryBad:  "매우나쁨",
}

func (g Grade) String() string {
	if name, ok := gradeNames[g]; ok {
		return name
	}
	return fmt.Sprintf("grade(%d)", int(g))
}

// Label returns the display label used on the dashboard.
func (g Grade) Label() string {
	return gradeLabels[g]
}

// Rank returns the position of the grade in the total order good < moderate < bad < veryBad.
func (g Grade) Rank() int {
	return int(g)
}

// Worse returns the more severe of the two grades, preferring g on a tie.
func (g Grade) Worse(other Grade) Grade {
	if g.Rank() >= other.Rank() {
		return g
	}
	return other
}

// ParseGrade converts a stored grade name back to a Grade.
func ParseGrade(s string) (Grade, error) {
	for g, name := range gradeNames {
		if name == s {
			return g, nil
		}
	}
	return GradeGood, fmt.Errorf("unknown grade %q", s)
}

func (g Grade) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.String())
}

func (g *Grade) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseGrade(s)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// Pollutant identifies which particulate size a value refers to.
type Pollutant string

const (
	PM25 Pollutant = "pm25"
	PM10 Pollutant = "pm10"
)
