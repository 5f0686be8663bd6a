// Package dataset prepares labeled flow datasets for risk model training.
package dataset

import (
	"strings"

	"netrisk/internal/models"
)

// Keyword families checked in order; the first family with a substring match wins.
var (
	highKeywords   = []string{"dos", "ddos", "bruteforce", "brute force", "brute-force", "sql", "infiltration", "xss", "bot", "heartbleed"}
	mediumKeywords = []string{"portscan", "scan", "ftp", "ssh", "suspicious"}
	lowKeywords    = []string{"normal", "benign"}
)

// RiskForLabel maps an attack label to a risk tier. Unrecognised labels are LOW.
func RiskForLabel(label string) models.Risk {
	l := strings.ToLower(label)
	switch {
	case containsAny(l, highKeywords):
		return models.RiskHigh
	case containsAny(l, mediumKeywords):
		return models.RiskMedium
	case containsAny(l, lowKeywords):
		return models.RiskLow
	}
	return models.RiskLow
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// Classes is the class index order used by trained models.
var Classes = []models.Risk{models.RiskLow, models.RiskMedium, models.RiskHigh}

// ClassIndex returns the model class index for r.
func ClassIndex(r models.Risk) int {
	for i, c := range Classes {
		if c == r {
			return i
		}
	}
	return 0
}

// RiskForClass maps a model class index back to a tier. Unknown indices are LOW.
func RiskForClass(i int) models.Risk {
	if i < 0 || i >= len(Classes) {
		return models.RiskLow
	}
	return Classes[i]
}

// ClassNames returns Classes as strings for artifact metadata.
func ClassNames() []string {
	names := make([]string, len(Classes))
	for i, c := range Classes {
		names[i] = string(c)
	}
	return names
}
