package listing

import (
	"strings"

	"github.com/kingrea/playpublish/internal/config"
)

// questionnaireRequest is the current content-rating request shape.
type questionnaireRequest struct {
	Questionnaire questionnaire `json:"questionnaire"`
}

type questionnaire struct {
	Gambling          bool   `json:"gambling"`
	FinancialFeatures bool   `json:"financialFeatures"`
	HealthApp         bool   `json:"healthApp"`
	TargetAudience    string `json:"targetAudience,omitempty"`
	Violence          bool   `json:"violence"`
	SexualContent     bool   `json:"sexualContent"`
	Drugs             bool   `json:"drugs"`
	ContainsAds       bool   `json:"containsAds"`
}

// ratingsRequest is the legacy shape: one answer per category.
type ratingsRequest struct {
	TargetAudience string         `json:"targetAudience,omitempty"`
	Ratings        []ratingAnswer `json:"ratings"`
}

type ratingAnswer struct {
	Category string `json:"category"`
	Answer   string `json:"answer"`
}

func audience(c config.Compliance) string {
	return ageBands[strings.ToLower(strings.TrimSpace(c.TargetAgeBand))]
}

func primaryRating(c config.Compliance) questionnaireRequest {
	return questionnaireRequest{Questionnaire: questionnaire{
		Gambling:          c.Gambling,
		FinancialFeatures: c.FinancialFeatures,
		HealthApp:         c.HealthApp,
		TargetAudience:    audience(c),
		Violence:          c.Violence,
		SexualContent:     c.SexualContent,
		Drugs:             c.Drugs,
		ContainsAds:       c.Ads,
	}}
}

func legacyRating(c config.Compliance) ratingsRequest {
	answers := []struct {
		category string
		value    bool
	}{
		{"GAMBLING", c.Gambling},
		{"FINANCIAL_FEATURES", c.FinancialFeatures},
		{"HEALTH", c.HealthApp},
		{"VIOLENCE", c.Violence},
		{"SEXUAL_CONTENT", c.SexualContent},
		{"DRUGS", c.Drugs},
		{"ADS", c.Ads},
	}
	req := ratingsRequest{TargetAudience: audience(c)}
	for _, a := range answers {
		answer := "NO"
		if a.value {
			answer = "YES"
		}
		req.Ratings = append(req.Ratings, ratingAnswer{Category: a.category, Answer: answer})
	}
	return req
}
