package worker

import (
	"fmt"

	"github.com/dabneyhovse/further/internal/queue"
	"github.com/dabneyhovse/further/internal/source"
	"github.com/dabneyhovse/further/internal/telegram"
)

// statusTree renders one element's status message. The same message is
// edited in place as the element moves through its lifecycle.
func statusTree(e *queue.Element, st queue.Status, requester string) telegram.TreeMessage {
	role, author := e.Source().Author()
	return telegram.Seq{
		telegram.Named{Key: "Track", Value: trackTitle(e.Source())},
		telegram.When(author != "", telegram.Named{Key: role, Value: telegram.Text(author)}),
		telegram.When(!e.Source().Duration().IsUnknown(),
			telegram.Named{Key: "Duration", Value: telegram.Text(e.Length().String())}),
		telegram.When(e.DSP().Active(),
			telegram.Named{Key: "Audio processing", Value: telegram.Code(e.DSP().String())}),
		telegram.Named{Key: "Status", Value: telegram.Text(stageText(st, requester))},
	}
}

func trackTitle(src source.Source) telegram.TreeMessage {
	if url := src.URL(); url != "" {
		return telegram.Raw(fmt.Sprintf(`<a href="%s">%s</a>`, url, telegram.Render(telegram.Text(src.Title()))))
	}
	return telegram.Text(src.Title())
}

func stageText(st queue.Status, requester string) string {
	switch st.Stage {
	case queue.StageSkipped:
		return "Skipped by " + st.Detail
	case queue.StageFailed:
		return "Failed: " + st.Detail
	case queue.StageQueued:
		return "Queued"
	default:
		s := st.Stage.String()
		if st.Stage == queue.StageDownloading && requester != "" {
			s += " (requested by " + requester + ")"
		}
		return s
	}
}

// snapshotTree renders the queue listing for /q with no arguments.
func snapshotTree(state queue.State, entries []queue.Entry) telegram.TreeMessage {
	if len(entries) == 0 {
		return telegram.Seq{
			telegram.Named{Key: "State", Value: telegram.Text(state.String())},
			telegram.Text("The queue is empty."),
		}
	}

	rows := make(telegram.Seq, 0, len(entries))
	total := source.Seconds(0)
	for i, entry := range entries {
		label := fmt.Sprintf("%d. %s (%s)", i+1, entry.Title, entry.Length)
		if entry.Current {
			label += " (playing)"
		}
		rows = append(rows, telegram.Text(label))
		// The current entry's consumed play time no longer counts as
		// remaining.
		total = total.Add(entry.Length).Add(source.Seconds(-entry.Elapsed.Seconds()))
	}

	return telegram.Seq{
		telegram.Named{Key: "State", Value: telegram.Text(state.String())},
		telegram.Named{Key: "Songs", Value: telegram.Text(fmt.Sprint(len(entries)))},
		telegram.Named{Key: "Queue", Value: rows},
		telegram.Named{Key: "Remaining", Value: telegram.Text(total.String())},
	}
}

// quietHoursTree renders the quiet-hours schedule for /quiet_hours.
func quietHoursTree(normalStart, weekendStart, end float64, active bool) telegram.TreeMessage {
	state := "inactive"
	if active {
		state = "active"
	}
	return telegram.Seq{
		telegram.Named{Key: "Quiet hours", Value: telegram.Text(state)},
		telegram.Named{Key: "Weeknights", Value: telegram.Text(hourRange(normalStart, end))},
		telegram.Named{Key: "Weekends", Value: telegram.Text(hourRange(weekendStart, end))},
	}
}

func hourRange(start, end float64) string {
	return clockTime(start) + " to " + clockTime(end)
}

func clockTime(h float64) string {
	whole := int(h)
	minutes := int((h - float64(whole)) * 60)
	return fmt.Sprintf("%02d:%02d", whole%24, minutes)
}
