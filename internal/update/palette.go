package update

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/medd/internal/commands"
	"github.com/sandeepkv93/medd/internal/model"
)

var errTestAlarmUnavailable = errors.New("update: test alarm not available")

func (m Model) handlePaletteKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closePalette()
		m.Status = StatusBar{Text: "command palette closed"}
		return m, nil
	case "enter":
		m.Palette.Input = m.commandInput.Value()
		return m.executePaletteCommand()
	default:
		if msg.Type == tea.KeyRunes {
			m.commandInput.SetValue(m.commandInput.Value() + string(msg.Runes))
			m.Palette.Input = m.commandInput.Value()
			return m, nil
		}
		var cmd tea.Cmd
		m.commandInput, cmd = m.commandInput.Update(msg)
		m.Palette.Input = m.commandInput.Value()
		return m, cmd
	}
}

func (m *Model) closePalette() {
	m.Palette.Active = false
	m.Palette.Input = ""
	m.commandInput.SetValue("")
	m.commandInput.Blur()
}

// executePaletteCommand parses the palette input. Show switches views in
// place; every other command runs against the backend as a tea.Cmd.
func (m Model) executePaletteCommand() (Model, tea.Cmd) {
	raw := strings.TrimSpace(m.Palette.Input)
	m.closePalette()

	cmd, err := commands.Parse(raw)
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m, nil
	}

	if cmd.Type == commands.TypeShow {
		res, err := commands.Execute(cmd, commands.Handlers{
			Show: func(s commands.ShowArgs) (commands.Result, error) {
				switch s.Subject {
				case "history":
					m.CurrentView = ViewHistory
				case "stats":
					m.CurrentView = ViewStats
				default:
					m.CurrentView = ViewToday
				}
				return commands.Result{Message: "show " + s.Subject}, nil
			},
		})
		if err != nil {
			m.Status = StatusBar{Text: err.Error(), IsError: true}
			return m, nil
		}
		m.Status = StatusBar{Text: res.Message}
		return m, m.reloadCmd()
	}

	handlers := m.paletteHandlers()
	return m, m.actionCmd(func(context.Context) (string, error) {
		res, err := commands.Execute(cmd, handlers)
		return res.Message, err
	})
}

// paletteHandlers binds commands to the backend. The handlers run inside a
// tea.Cmd, so they only read the medication snapshot taken here.
func (m Model) paletteHandlers() commands.Handlers {
	backend := m.backend
	user := m.User
	meds := append([]model.Medication(nil), m.Medications...)
	testAlarm := m.testAlarm

	ctx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), actionTimeout)
	}

	setTaken := func(t commands.TargetArgs, taken bool) (commands.Result, error) {
		med, err := resolveTarget(meds, t.Target)
		if err != nil {
			return commands.Result{}, err
		}
		c, cancel := ctx()
		defer cancel()
		if _, err := backend.SetTaken(c, med.ID, taken); err != nil {
			return commands.Result{}, err
		}
		state := "taken"
		if !taken {
			state = "not taken"
		}
		return commands.Result{Message: fmt.Sprintf("%s marked %s", med.Name, state)}, nil
	}

	return commands.Handlers{
		Add: func(a commands.AddArgs) (commands.Result, error) {
			c, cancel := ctx()
			defer cancel()
			med, err := backend.AddMedication(c, model.Medication{
				UserID:               user.ID,
				Name:                 a.Name,
				Dosage:               a.Dosage,
				Time:                 a.Time,
				Frequency:            a.Frequency,
				NotificationsEnabled: true,
			})
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("added %s at %s (%s)", med.Name, med.Time, med.Frequency)}, nil
		},
		Take:   func(t commands.TargetArgs) (commands.Result, error) { return setTaken(t, true) },
		Untake: func(t commands.TargetArgs) (commands.Result, error) { return setTaken(t, false) },
		Defer: func(d commands.DeferArgs) (commands.Result, error) {
			med, err := resolveTarget(meds, d.Target)
			if err != nil {
				return commands.Result{}, err
			}
			c, cancel := ctx()
			defer cancel()
			updated, err := backend.DeferMedication(c, med.ID, d.Minutes)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("%s deferred to %s", med.Name, updated.Time)}, nil
		},
		Delete: func(t commands.TargetArgs) (commands.Result, error) {
			med, err := resolveTarget(meds, t.Target)
			if err != nil {
				return commands.Result{}, err
			}
			c, cancel := ctx()
			defer cancel()
			if err := backend.DeleteMedication(c, med.ID); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("%s deleted", med.Name)}, nil
		},
		Reconcile: func() (commands.Result, error) {
			c, cancel := ctx()
			defer cancel()
			rep, err := backend.Reconcile(c, user.ID)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: reportText(rep.RescheduledCount, rep.SkippedCount, rep.FailedNames)}, nil
		},
		Test: func() (commands.Result, error) {
			if testAlarm == nil {
				return commands.Result{}, errTestAlarmUnavailable
			}
			c, cancel := ctx()
			defer cancel()
			if err := testAlarm(c); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: "test alarm scheduled"}, nil
		},
	}
}

func resolveTarget(meds []model.Medication, target string) (model.Medication, error) {
	med, ok := model.FindMedication(meds, target)
	if !ok {
		return model.Medication{}, &commands.CommandError{
			Code:    commands.ErrCodeInvalidArgument,
			Message: fmt.Sprintf("no medication matches %q", strings.TrimSpace(target)),
		}
	}
	return med, nil
}

func reportText(rescheduled, skipped int, failed []string) string {
	text := fmt.Sprintf("reconciled: %d rescheduled, %d skipped", rescheduled, skipped)
	if len(failed) > 0 {
		text += fmt.Sprintf(", failed: %s", strings.Join(failed, ", "))
	}
	return text
}
