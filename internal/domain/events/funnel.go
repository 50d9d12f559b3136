package events

import (
	"fmt"
	"sort"
	"strconv"
)

const (
	labelAll         = "all"
	labelNoCampaign  = "(sem campanha)"
	labelNoSource    = "(sem source)"
	labelNoMedium    = "(sem medium)"
	dayLayout        = "2006-01-02"
	defaultFunnelLag = 7
	defaultDailyLag  = 30
)

// ValidGroupBy reports whether g is a supported funnel grouping.
func ValidGroupBy(g string) bool {
	switch g {
	case GroupNone, GroupCampaign, GroupSource, GroupMedium:
		return true
	}
	return false
}

// groupOf returns the label an event falls under for groupBy.
func groupOf(groupBy string, u UTM) string {
	pick := func(v, missing string) string {
		if v == "" {
			return missing
		}
		return v
	}
	switch groupBy {
	case GroupCampaign:
		return pick(u.Campaign, labelNoCampaign)
	case GroupSource:
		return pick(u.Source, labelNoSource)
	case GroupMedium:
		return pick(u.Medium, labelNoMedium)
	default:
		return labelAll
	}
}

// buildRows folds aggregated cells into one row per group, sorted by group.
// Steps with no events are present with zero counts.
func buildRows(counts []Count) []FunnelRow {
	byGroup := make(map[string]map[string]StepCount)
	for _, c := range counts {
		steps, ok := byGroup[c.Group]
		if !ok {
			steps = make(map[string]StepCount, len(FunnelEvents))
			byGroup[c.Group] = steps
		}
		steps[c.Event] = c.StepCount
	}

	groups := make([]string, 0, len(byGroup))
	for g := range byGroup {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	rows := make([]FunnelRow, 0, len(groups))
	for _, g := range groups {
		steps := byGroup[g]
		for _, name := range FunnelEvents {
			if _, ok := steps[name]; !ok {
				steps[name] = StepCount{}
			}
		}
		rows = append(rows, FunnelRow{
			Group:  g,
			Funnel: steps,
			ConversionRates: ConversionRates{
				LandingToBooking:  rate(steps[BookingConfirmed].Sessions, steps[LandingView].Sessions),
				BookingToFinished: rate(steps[ConsultFinished].Sessions, steps[BookingConfirmed].Sessions),
			},
		})
	}
	return rows
}

// buildDays folds daily cells into one entry per day, newest first.
func buildDays(counts []DayCount) []DailyFunnel {
	byDay := make(map[string]map[string]StepCount)
	for _, c := range counts {
		steps, ok := byDay[c.Day]
		if !ok {
			steps = make(map[string]StepCount)
			byDay[c.Day] = steps
		}
		steps[c.Event] = c.StepCount
	}

	days := make([]DailyFunnel, 0, len(byDay))
	for d, steps := range byDay {
		days = append(days, DailyFunnel{Day: d, Funnel: steps})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day > days[j].Day })
	return days
}

// rate returns num/den as a percentage with two decimals, "0.00" when den is 0.
func rate(num, den int) string {
	if den <= 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(num)/float64(den)*100)
}

// amount reads a numeric property that may arrive as a JSON number or a
// numeric string.
func amount(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
