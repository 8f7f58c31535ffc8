package views

import (
	"fmt"
	"strings"
)

type TodayItemData struct {
	ID        int64
	Name      string
	Dosage    string
	Time      string
	Frequency string
	NextFire  string
	Taken     bool
	Muted     bool
}

type TodayPanelData struct {
	Items      []TodayItemData
	SelectedID int64
	Date       string
}

type MedicationDetailData struct {
	Name         string
	Dosage       string
	Time         string
	Frequency    string
	Instructions string
	StartDate    string
	EndDate      string
	Reminders    int
	NextFire     string
	Enabled      bool
}

type HistoryRowData struct {
	Date      string
	Name      string
	Dosage    string
	Scheduled string
	Taken     string
	Status    string
}

type StatsPanelData struct {
	Total      int
	Taken      int
	Missed     int
	Percentage int
	BarView    string
}

type ReminderData struct {
	Title string
	Body  string
	At    string
}

func RenderTodayPanel(data TodayPanelData) string {
	pending := make([]TodayItemData, 0)
	taken := make([]TodayItemData, 0)
	for _, item := range data.Items {
		if item.Taken {
			taken = append(taken, item)
		} else {
			pending = append(pending, item)
		}
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("today: %s\n", data.Date))
	b.WriteString("actions: [j/k]move [x]taken [+]defer 15m [d]delete [r]reconcile [t]test alarm\n")
	renderTodaySection(&b, "Pending", pending, data.SelectedID)
	renderTodaySection(&b, "Taken", taken, data.SelectedID)
	return strings.TrimSpace(b.String())
}

func RenderMedicationDetail(data *MedicationDetailData) string {
	if data == nil {
		return "medication:\n(no selection)"
	}
	var b strings.Builder
	b.WriteString("medication:\n")
	b.WriteString(fmt.Sprintf("name: %s\n", data.Name))
	b.WriteString(fmt.Sprintf("dosage: %s\n", data.Dosage))
	b.WriteString(fmt.Sprintf("time: %s (%s)\n", data.Time, data.Frequency))
	if data.Instructions != "" {
		b.WriteString(fmt.Sprintf("instructions: %s\n", data.Instructions))
	}
	if data.StartDate != "" || data.EndDate != "" {
		b.WriteString(fmt.Sprintf("course: %s .. %s\n", orDash(data.StartDate), orDash(data.EndDate)))
	}
	if !data.Enabled {
		b.WriteString("reminders: off\n")
		return strings.TrimSuffix(b.String(), "\n")
	}
	b.WriteString(fmt.Sprintf("reminders: %d scheduled\n", data.Reminders))
	if data.NextFire != "" {
		b.WriteString(fmt.Sprintf("next: %s\n", data.NextFire))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// HistoryMarkdown lays history rows out as a markdown table for RenderMarkdown.
func HistoryMarkdown(rows []HistoryRowData) string {
	if len(rows) == 0 {
		return "_no history yet_"
	}
	var b strings.Builder
	b.WriteString("| Date | Medication | Dosage | Scheduled | Taken | Status |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
			r.Date, escapeCell(r.Name), escapeCell(r.Dosage), r.Scheduled, orDash(r.Taken), r.Status))
	}
	return b.String()
}

func RenderStatsPanel(data StatsPanelData) string {
	var b strings.Builder
	b.WriteString("adherence:\n")
	if data.Total == 0 {
		b.WriteString("(no doses recorded yet)")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("total: %d\n", data.Total))
	b.WriteString(fmt.Sprintf("taken: %d\n", data.Taken))
	b.WriteString(fmt.Sprintf("missed: %d\n", data.Missed))
	b.WriteString(fmt.Sprintf("rate: %d%%\n", data.Percentage))
	if data.BarView != "" {
		b.WriteString(data.BarView)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func RenderReminderLog(items []ReminderData) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("reminders:\n")
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		b.WriteString(fmt.Sprintf("%s %s: %s\n", item.At, item.Title, item.Body))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func RenderCommandPalette(active bool, input string) string {
	if !active {
		return ""
	}
	return fmt.Sprintf("command: %s", input)
}

func renderTodaySection(b *strings.Builder, title string, items []TodayItemData, selectedID int64) {
	b.WriteString(fmt.Sprintf("\n%s:\n", title))
	if len(items) == 0 {
		b.WriteString("  (none)\n")
		return
	}
	for _, item := range items {
		cursor := " "
		if selectedID == item.ID {
			cursor = ">"
		}
		b.WriteString(fmt.Sprintf("%s %s %s %s @%s", cursor, badge(item), item.Name, item.Dosage, item.Time))
		if item.NextFire != "" && !item.Taken {
			b.WriteString(fmt.Sprintf(" next:%s", item.NextFire))
		}
		b.WriteString("\n")
	}
}

func badge(item TodayItemData) string {
	switch {
	case item.Taken:
		return "[OK]"
	case item.Muted:
		return "[OFF]"
	default:
		return "[DUE]"
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
