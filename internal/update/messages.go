package update

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/medd/internal/model"
	"github.com/sandeepkv93/medd/internal/notify"
)

type SwitchViewMsg struct {
	View View
}

type SetStatusMsg struct {
	Text    string
	IsError bool
}

type AppErrorMsg struct {
	Err error
}

type ReminderDueMsg struct {
	Delivery notify.Delivery
}

type MedicationsLoadedMsg struct {
	Medications []model.Medication
	Err         error
}

type HistoryLoadedMsg struct {
	Events []model.HistoryEvent
	Stats  model.Stats
	Err    error
}

// ActionDoneMsg reports a finished mutation; the model reloads afterwards.
type ActionDoneMsg struct {
	Text string
	Err  error
}

func waitForReminderCmd(ch <-chan notify.Delivery) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		d, ok := <-ch
		if !ok {
			return nil
		}
		return ReminderDueMsg{Delivery: d}
	}
}

func (m Model) loadMedicationsCmd() tea.Cmd {
	backend, userID := m.backend, m.User.ID
	if backend == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		meds, err := backend.Medications(ctx, userID)
		return MedicationsLoadedMsg{Medications: meds, Err: err}
	}
}

func (m Model) loadHistoryCmd() tea.Cmd {
	backend, userID := m.backend, m.User.ID
	if backend == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		events, err := backend.History(ctx, userID, "", historyLimit)
		if err != nil {
			return HistoryLoadedMsg{Err: err}
		}
		stats, err := backend.Stats(ctx, userID)
		return HistoryLoadedMsg{Events: events, Stats: stats, Err: err}
	}
}

func (m Model) reloadCmd() tea.Cmd {
	if m.CurrentView == ViewToday {
		return m.loadMedicationsCmd()
	}
	return tea.Batch(m.loadMedicationsCmd(), m.loadHistoryCmd())
}

// actionCmd runs fn off the update loop and reports it as an ActionDoneMsg.
func (m Model) actionCmd(fn func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		text, err := fn(ctx)
		return ActionDoneMsg{Text: text, Err: err}
	}
}

func (m Model) toggleTakenCmd(med model.Medication) tea.Cmd {
	backend := m.backend
	return m.actionCmd(func(ctx context.Context) (string, error) {
		updated, err := backend.SetTaken(ctx, med.ID, !med.TakenToday)
		if err != nil {
			return "", err
		}
		if updated.TakenToday {
			return fmt.Sprintf("%s marked taken", med.Name), nil
		}
		return fmt.Sprintf("%s marked not taken", med.Name), nil
	})
}

func (m Model) deferCmd(med model.Medication, minutes int) tea.Cmd {
	backend := m.backend
	return m.actionCmd(func(ctx context.Context) (string, error) {
		updated, err := backend.DeferMedication(ctx, med.ID, minutes)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s deferred to %s", med.Name, updated.Time), nil
	})
}

func (m Model) deleteCmd(med model.Medication) tea.Cmd {
	backend := m.backend
	return m.actionCmd(func(ctx context.Context) (string, error) {
		if err := backend.DeleteMedication(ctx, med.ID); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s deleted", med.Name), nil
	})
}

func (m Model) reconcileCmd() tea.Cmd {
	backend, userID := m.backend, m.User.ID
	return m.actionCmd(func(ctx context.Context) (string, error) {
		rep, err := backend.Reconcile(ctx, userID)
		if err != nil {
			return "", err
		}
		return reportText(rep.RescheduledCount, rep.SkippedCount, rep.FailedNames), nil
	})
}

func (m Model) testAlarmCmd() tea.Cmd {
	fn := m.testAlarm
	return m.actionCmd(func(ctx context.Context) (string, error) {
		if fn == nil {
			return "", errTestAlarmUnavailable
		}
		if err := fn(ctx); err != nil {
			return "", err
		}
		return "test alarm scheduled", nil
	})
}
