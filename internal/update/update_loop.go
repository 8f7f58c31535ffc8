package update

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/sandeepkv93/medd/internal/model"
	"github.com/sandeepkv93/medd/internal/views"
)

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadMedicationsCmd(), waitForReminderCmd(m.reminders))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		if m.Palette.Active {
			return m.handlePaletteKey(typed)
		}
		return m.handleKey(typed)
	case tea.WindowSizeMsg:
		m.paneWidth = max((typed.Width-8)/2, 30)
		return m, nil
	case SwitchViewMsg:
		if !isKnownView(typed.View) {
			return m, nil
		}
		m.CurrentView = typed.View
		return m, m.reloadCmd()
	case SetStatusMsg:
		m.Status = StatusBar{Text: typed.Text, IsError: typed.IsError}
		return m, nil
	case AppErrorMsg:
		m.LastError = typed.Err
		if typed.Err != nil {
			m.Status = StatusBar{Text: typed.Err.Error(), IsError: true}
		}
		return m, nil
	case ReminderDueMsg:
		m.ReminderLog = append(m.ReminderLog, typed.Delivery)
		if len(m.ReminderLog) > reminderLogCap {
			m.ReminderLog = m.ReminderLog[len(m.ReminderLog)-reminderLogCap:]
		}
		p := typed.Delivery.Payload
		m.Status = StatusBar{Text: fmt.Sprintf("reminder: %s", p.Body)}
		return m, waitForReminderCmd(m.reminders)
	case MedicationsLoadedMsg:
		if typed.Err != nil {
			m.LastError = typed.Err
			m.Status = StatusBar{Text: typed.Err.Error(), IsError: true}
			return m, nil
		}
		m.setMedications(typed.Medications)
		return m, nil
	case HistoryLoadedMsg:
		if typed.Err != nil {
			m.LastError = typed.Err
			m.Status = StatusBar{Text: typed.Err.Error(), IsError: true}
			return m, nil
		}
		m.History = typed.Events
		m.Stats = typed.Stats
		return m, nil
	case ActionDoneMsg:
		if typed.Err != nil {
			m.LastError = typed.Err
			m.Status = StatusBar{Text: typed.Err.Error(), IsError: true}
			m.log.Warn("action failed", zap.Error(typed.Err))
		} else {
			m.Status = StatusBar{Text: typed.Text}
		}
		return m, m.reloadCmd()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", m.Keys.Quit:
		m.Quitting = true
		return m, tea.Quit
	case "/":
		m.Palette.Active = true
		m.Palette.Input = ""
		m.commandInput.SetValue("")
		m.commandInput.Focus()
		m.Status = StatusBar{Text: "command palette active"}
		return m, nil
	case m.Keys.Today:
		m.CurrentView = ViewToday
		return m, m.reloadCmd()
	case m.Keys.History:
		m.CurrentView = ViewHistory
		return m, m.reloadCmd()
	case m.Keys.Stats:
		m.CurrentView = ViewStats
		return m, m.reloadCmd()
	case m.Keys.Reconcile:
		m.Status = StatusBar{Text: "reconciling reminders"}
		return m, m.reconcileCmd()
	case m.Keys.TestAlarm:
		return m, m.testAlarmCmd()
	}

	if m.CurrentView != ViewToday {
		return m, nil
	}
	switch msg.String() {
	case m.Keys.Up, "up":
		if m.Cursor > 0 {
			m.Cursor--
		}
	case m.Keys.Down, "down":
		if m.Cursor < len(m.Medications)-1 {
			m.Cursor++
		}
	case m.Keys.Take, " ", "enter":
		if med, ok := m.Selected(); ok {
			return m, m.toggleTakenCmd(med)
		}
	case m.Keys.Defer:
		if med, ok := m.Selected(); ok {
			return m, m.deferCmd(med, deferStep)
		}
	case m.Keys.Delete:
		if med, ok := m.Selected(); ok {
			return m, m.deleteCmd(med)
		}
	}
	return m, nil
}

// setMedications orders pending doses before taken ones, by time, and keeps
// the cursor on the previously selected medication when it still exists.
func (m *Model) setMedications(meds []model.Medication) {
	var selectedID int64
	if med, ok := m.Selected(); ok {
		selectedID = med.ID
	}
	sorted := append([]model.Medication(nil), meds...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TakenToday != sorted[j].TakenToday {
			return !sorted[i].TakenToday
		}
		return clockKey(sorted[i].Time) < clockKey(sorted[j].Time)
	})
	m.Medications = sorted
	for i, med := range sorted {
		if med.ID == selectedID {
			m.Cursor = i
			return
		}
	}
	m.clampCursor()
}

func clockKey(raw string) int {
	c, err := model.ParseClock(raw)
	if err != nil {
		return 24 * 60
	}
	return c.Hour*60 + c.Minute
}

func (m Model) View() string {
	if m.Quitting {
		return ""
	}
	status := ""
	if m.Status.Text != "" {
		if m.Status.IsError {
			status = fmt.Sprintf("status: error: %s", m.Status.Text)
		} else {
			status = fmt.Sprintf("status: %s", m.Status.Text)
		}
	}

	leftPane := ""
	rightPane := ""
	switch m.CurrentView {
	case ViewToday:
		leftPane = m.renderTodayView()
		rightPane = m.renderDetailPane()
	case ViewHistory:
		leftPane = views.RenderMarkdown(views.HistoryMarkdown(m.historyRows()), m.paneWidth)
		rightPane = m.renderStatsView()
	case ViewStats:
		leftPane = m.renderStatsView()
		rightPane = m.renderDetailPane()
	}
	rightPane = joinNonEmpty(rightPane,
		views.RenderCommandPalette(m.Palette.Active, m.commandInput.View()),
		views.RenderReminderLog(m.reminderRows()),
	)

	return views.RenderApp(views.AppData{
		Header:     fmt.Sprintf("medd | %s | view: %s", m.User.Email, m.CurrentView),
		LeftPane:   leftPane,
		RightPane:  rightPane,
		StatusLine: status,
		IsError:    m.Status.IsError,
		Reminder:   m.reminderBanner(),
		PaneWidth:  m.paneWidth,
		Footer: fmt.Sprintf("keys: %s today | %s history | %s stats | / cmd | %s reconcile | %s quit",
			m.Keys.Today, m.Keys.History, m.Keys.Stats, m.Keys.Reconcile, m.Keys.Quit),
	})
}

func (m Model) renderTodayView() string {
	items := make([]views.TodayItemData, 0, len(m.Medications))
	for _, med := range m.Medications {
		item := views.TodayItemData{
			ID:        med.ID,
			Name:      med.Name,
			Dosage:    med.Dosage,
			Time:      med.Time,
			Frequency: med.Frequency,
			Taken:     med.TakenToday,
			Muted:     !med.NotificationsEnabled,
		}
		if m.backend != nil && med.NotificationsEnabled {
			if at, ok := m.backend.NextFire(med); ok {
				item.NextFire = at.Format("15:04")
			}
		}
		items = append(items, item)
	}
	var selected int64
	if med, ok := m.Selected(); ok {
		selected = med.ID
	}
	return views.RenderTodayPanel(views.TodayPanelData{
		Items:      items,
		SelectedID: selected,
		Date:       m.now().Format(model.DateLayout),
	})
}

func (m Model) renderDetailPane() string {
	med, ok := m.Selected()
	if !ok {
		return views.RenderMedicationDetail(nil)
	}
	data := views.MedicationDetailData{
		Name:         med.Name,
		Dosage:       med.Dosage,
		Time:         med.Time,
		Frequency:    med.Frequency,
		Instructions: med.Instructions,
		StartDate:    med.StartDate,
		EndDate:      med.EndDate,
		Reminders:    len(med.Handles),
		Enabled:      med.NotificationsEnabled,
	}
	if m.backend != nil {
		if at, ok := m.backend.NextFire(med); ok {
			data.NextFire = at.Format("Mon 15:04")
		}
	}
	return views.RenderMedicationDetail(&data)
}

func (m Model) renderStatsView() string {
	return views.RenderStatsPanel(views.StatsPanelData{
		Total:      m.Stats.Total,
		Taken:      m.Stats.Taken,
		Missed:     m.Stats.Missed,
		Percentage: m.Stats.Percentage,
		BarView:    m.adherenceBar.ViewAs(float64(m.Stats.Percentage) / 100),
	})
}

func (m Model) historyRows() []views.HistoryRowData {
	rows := make([]views.HistoryRowData, 0, len(m.History))
	for _, ev := range m.History {
		rows = append(rows, views.HistoryRowData{
			Date:      ev.Date,
			Name:      ev.MedicationName,
			Dosage:    ev.Dosage,
			Scheduled: ev.ScheduledTime,
			Taken:     ev.TakenTime,
			Status:    string(ev.Status),
		})
	}
	return rows
}

func (m Model) reminderRows() []views.ReminderData {
	rows := make([]views.ReminderData, 0, len(m.ReminderLog))
	for _, d := range m.ReminderLog {
		rows = append(rows, views.ReminderData{
			Title: d.Payload.Title,
			Body:  d.Payload.Body,
			At:    d.FiredAt.Format("15:04"),
		})
	}
	return rows
}

// reminderBanner shows the latest reminder while its medication is still
// pending. Reminders without a medication (test alarms) always show.
func (m Model) reminderBanner() string {
	if len(m.ReminderLog) == 0 {
		return ""
	}
	last := m.ReminderLog[len(m.ReminderLog)-1]
	for _, med := range m.Medications {
		if med.ID == last.Payload.MedicationID && med.TakenToday {
			return ""
		}
	}
	return fmt.Sprintf("%s: %s", last.Payload.Title, last.Payload.Body)
}

func joinNonEmpty(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
