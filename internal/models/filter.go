package models

import (
	"regexp"
	"strconv"
	"strings"
)

// DisasterFilter is the structured filter extracted from a prompt. Analytical
// agents pass it to the data warehouse; zero values mean "no constraint".
type DisasterFilter struct {
	DisasterType string `json:"disaster_type,omitempty"`
	Country      string `json:"country,omitempty"`
	Year         int    `json:"year,omitempty"`
	Metric       Metric `json:"metric,omitempty"`
}

func (f DisasterFilter) HasSubject() bool {
	return f.DisasterType != "" || f.Country != ""
}

// Metric names a warehouse measure column.
type Metric string

const (
	MetricTotalDeaths    Metric = "total_deaths"
	MetricInjured        Metric = "no_injured"
	MetricAffected       Metric = "no_affected"
	MetricHomeless       Metric = "no_homeless"
	MetricInsuredDamage  Metric = "insured_damage_usd"
	MetricReconstruction Metric = "reconstruction_costs_usd"
	MetricTotalDamage    Metric = "total_damage_usd"
	MetricTotalAffected  Metric = "total_affected"
)

func (m Metric) Label() string {
	parts := strings.Split(string(m), "_")
	for i, part := range parts {
		if part == "usd" {
			parts[i] = "USD"
			continue
		}
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, " ")
}

var disasterTypes = []string{
	"volcanic activity", "flash flood", "flood", "storm", "earthquake",
	"wildfire", "epidemic", "mass movement (wet)", "infestation",
	"extreme temperature", "drought", "mass movement (dry)", "cyclone",
	"tsunami",
}

var countries = []string{
	"guatemala", "brazil", "united states of america", "colombia", "argentina",
	"peru", "bolivia (plurinational state of)", "ecuador", "french guiana",
	"uruguay", "mexico", "chile", "nicaragua", "costa rica", "paraguay",
	"panama", "belize", "cuba", "jamaica", "puerto rico",
	"venezuela (bolivarian republic of)", "haiti", "dominican republic",
	"barbados", "grenada", "saint vincent and the grenadines", "bermuda",
	"saint lucia", "united states virgin islands", "martinique",
	"turks and caicos islands", "antigua and barbuda", "british virgin islands",
	"canada", "el salvador", "cayman islands", "bahamas", "honduras",
	"trinidad and tobago", "dominica", "guadeloupe", "guyana", "suriname",
	"saint kitts and nevis", "anguilla", "montserrat", "japan",
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	yearRe       = regexp.MustCompile(`\b(20[0-2][0-9])\b`)
)

const (
	minFilterYear = 2000
	maxFilterYear = 2025
)

// ParseDisasterPrompt extracts disaster type, country and year (2000-2025) from
// free text. Longer disaster names are matched before their substrings, so
// "flash flood" wins over "flood".
func ParseDisasterPrompt(prompt string) DisasterFilter {
	normalized := whitespaceRe.ReplaceAllString(strings.ToLower(prompt), " ")
	normalized = " " + strings.TrimSpace(normalized) + " "

	filter := DisasterFilter{Metric: InferMetric(prompt)}

	for _, disaster := range disasterTypes {
		if containsPhrase(normalized, disaster) {
			filter.DisasterType = disaster
			break
		}
	}

	for _, country := range countries {
		if containsPhrase(normalized, country) {
			filter.Country = country
			break
		}
	}

	if match := yearRe.FindString(normalized); match != "" {
		if year, err := strconv.Atoi(match); err == nil && year >= minFilterYear && year <= maxFilterYear {
			filter.Year = year
		}
	}

	return filter
}

// containsPhrase requires word boundaries on both sides of the phrase.
func containsPhrase(normalized, phrase string) bool {
	idx := strings.Index(normalized, phrase)
	for idx >= 0 {
		before := normalized[idx-1]
		after := byte(' ')
		if idx+len(phrase) < len(normalized) {
			after = normalized[idx+len(phrase)]
		}
		if isBoundary(before) && isBoundary(after) {
			return true
		}
		next := strings.Index(normalized[idx+1:], phrase)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isBoundary(b byte) bool {
	return !(b >= 'a' && b <= 'z') && !(b >= '0' && b <= '9')
}

// InferMetric picks the warehouse measure a prompt is asking about. Defaults
// to total affected when nothing more specific is mentioned.
func InferMetric(prompt string) Metric {
	p := strings.ToLower(prompt)
	switch {
	case strings.Contains(p, "death"):
		return MetricTotalDeaths
	case strings.Contains(p, "injured"):
		return MetricInjured
	case strings.Contains(p, "homeless"):
		return MetricHomeless
	case strings.Contains(p, "damage") && strings.Contains(p, "insured"):
		return MetricInsuredDamage
	case strings.Contains(p, "damage") && strings.Contains(p, "reconstruction"):
		return MetricReconstruction
	case strings.Contains(p, "damage"):
		return MetricTotalDamage
	case strings.Contains(p, "affected"):
		return MetricAffected
	default:
		return MetricTotalAffected
	}
}
