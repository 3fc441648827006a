package insights

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/remindsync/internal/server/models"
)

// Static derives texts from simple counts. It never fails.
type Static struct{}

func (Static) Generate(_ context.Context, kind string, recent []*models.Reminder) ([]string, error) {
	if kind == KindSuggestion {
		return suggest(recent), nil
	}

	done, high, open := 0, 0, 0
	for _, r := range recent {
		switch {
		case r.IsCompleted:
			done++
		case r.Priority == models.PriorityHigh:
			high++
			open++
		default:
			open++
		}
	}
	if len(recent) == 0 {
		return []string{"No reminders this week. Plan one small task for tomorrow."}, nil
	}
	out := []string{fmt.Sprintf("You completed %d of %d reminders.", done, len(recent))}
	if high > 0 {
		out = append(out, fmt.Sprintf("%d high-priority reminders are still open.", high))
	} else if open == 0 {
		out = append(out, "Everything is done. Nice work.")
	}
	return out, nil
}

func suggest(recent []*models.Reminder) []string {
	counts := map[string]int{}
	for _, r := range recent {
		if c := strings.TrimSpace(r.Category); c != "" {
			counts[c]++
		}
	}
	if len(counts) == 0 {
		return []string{"Add a reminder for something you have been putting off."}
	}
	cats := make([]string, 0, len(counts))
	for c := range counts {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if counts[cats[i]] != counts[cats[j]] {
			return counts[cats[i]] > counts[cats[j]]
		}
		return cats[i] < cats[j]
	})
	return []string{fmt.Sprintf("You often plan %s tasks. Anything %s for today?", cats[0], cats[0])}
}
