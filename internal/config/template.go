package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Parameter templates a job may use. Dates render as UTC calendar days.
const (
	TemplateTodayUTC     = "{today_utc}"
	TemplateYesterdayUTC = "{yesterday_utc}"
	TemplateTomorrowUTC  = "{tomorrow_utc}"
	TemplateSeason       = "{season}"
	TemplateLeagueID     = "{league_id}"
)

var templatePattern = regexp.MustCompile(`\{[a-z_]+\}`)

var knownTemplates = map[string]bool{
	TemplateTodayUTC:     true,
	TemplateYesterdayUTC: true,
	TemplateTomorrowUTC:  true,
	TemplateSeason:       true,
	TemplateLeagueID:     true,
}

func validateParamTemplate(value string) error {
	for _, match := range templatePattern.FindAllString(value, -1) {
		if !knownTemplates[match] {
			return fmt.Errorf("unknown template %s", match)
		}
	}
	return nil
}

// ResolveParams expands the templates in a job's params for one tracked
// league at one instant. Keys come back sorted-stable via map copy; callers
// canonicalise ordering themselves when they need it.
func ResolveParams(params map[string]string, now time.Time, league TrackedLeague) map[string]string {
	if len(params) == 0 {
		return map[string]string{}
	}

	day := now.UTC()
	replacer := strings.NewReplacer(
		TemplateTodayUTC, day.Format("2006-01-02"),
		TemplateYesterdayUTC, day.AddDate(0, 0, -1).Format("2006-01-02"),
		TemplateTomorrowUTC, day.AddDate(0, 0, 1).Format("2006-01-02"),
		TemplateSeason, strconv.Itoa(league.Season),
		TemplateLeagueID, strconv.FormatInt(league.ID, 10),
	)

	out := make(map[string]string, len(params))
	for key, value := range params {
		out[key] = replacer.Replace(value)
	}
	return out
}
