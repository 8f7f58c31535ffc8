package update

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"go.uber.org/zap"

	"github.com/sandeepkv93/medd/internal/model"
	"github.com/sandeepkv93/medd/internal/notify"
	"github.com/sandeepkv93/medd/internal/scheduler"
)

type View string

const (
	ViewToday   View = "Today"
	ViewHistory View = "History"
	ViewStats   View = "Stats"
)

const (
	historyLimit   = 50
	reminderLogCap = 20
	deferStep      = 15
	actionTimeout  = 10 * time.Second
)

// Backend is the slice of tracker.Service the UI drives.
type Backend interface {
	Medications(ctx context.Context, userID int64) ([]model.Medication, error)
	AddMedication(ctx context.Context, med model.Medication) (model.Medication, error)
	SetTaken(ctx context.Context, id int64, taken bool) (model.Medication, error)
	DeferMedication(ctx context.Context, id int64, minutes int) (model.Medication, error)
	DeleteMedication(ctx context.Context, id int64) error
	History(ctx context.Context, userID int64, date string, limit int) ([]model.HistoryEvent, error)
	Stats(ctx context.Context, userID int64) (model.Stats, error)
	Reconcile(ctx context.Context, userID int64) (scheduler.Report, error)
	NextFire(med model.Medication) (time.Time, bool)
}

// TestAlarmFunc fires a debug reminder shortly after it is called.
type TestAlarmFunc func(ctx context.Context) error

type StatusBar struct {
	Text    string
	IsError bool
}

type GlobalKeyMap struct {
	Today     string
	History   string
	Stats     string
	Up        string
	Down      string
	Take      string
	Defer     string
	Delete    string
	Reconcile string
	TestAlarm string
	Quit      string
}

func DefaultKeys() GlobalKeyMap {
	return GlobalKeyMap{
		Today:     "1",
		History:   "2",
		Stats:     "3",
		Up:        "k",
		Down:      "j",
		Take:      "x",
		Defer:     "+",
		Delete:    "d",
		Reconcile: "r",
		TestAlarm: "t",
		Quit:      "q",
	}
}

type CommandPaletteState struct {
	Active bool
	Input  string
}

type Model struct {
	CurrentView View
	User        model.User
	Medications []model.Medication
	Cursor      int
	History     []model.HistoryEvent
	Stats       model.Stats
	ReminderLog []notify.Delivery
	Palette     CommandPaletteState
	Status      StatusBar
	Keys        GlobalKeyMap
	Quitting    bool
	LastError   error

	backend   Backend
	testAlarm TestAlarmFunc
	reminders <-chan notify.Delivery
	log       *zap.Logger
	now       func() time.Time
	paneWidth int

	commandInput textinput.Model
	adherenceBar progress.Model
}

type Option func(*Model)

// WithReminders makes the model listen for fired reminders on ch.
func WithReminders(ch <-chan notify.Delivery) Option {
	return func(m *Model) { m.reminders = ch }
}

func WithTestAlarm(fn TestAlarmFunc) Option {
	return func(m *Model) { m.testAlarm = fn }
}

func WithLogger(log *zap.Logger) Option {
	return func(m *Model) {
		if log != nil {
			m.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

func NewModel(backend Backend, user model.User, opts ...Option) Model {
	m := Model{
		CurrentView: ViewToday,
		User:        user,
		Keys:        DefaultKeys(),
		backend:     backend,
		log:         zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.initBubbleComponents()
	return m
}

func (m *Model) initBubbleComponents() {
	m.commandInput = textinput.New()
	m.commandInput.Prompt = "/"
	m.commandInput.CharLimit = 256
	m.commandInput.Width = 42

	m.adherenceBar = progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))
}

// Selected returns the medication under the cursor.
func (m Model) Selected() (model.Medication, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.Medications) {
		return model.Medication{}, false
	}
	return m.Medications[m.Cursor], true
}

func (m *Model) clampCursor() {
	if m.Cursor >= len(m.Medications) {
		m.Cursor = len(m.Medications) - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
}

func isKnownView(v View) bool {
	switch v {
	case ViewToday, ViewHistory, ViewStats:
		return true
	default:
		return false
	}
}
