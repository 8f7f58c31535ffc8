package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/medd/internal/model"
)

type Type string

const (
	TypeAdd       Type = "add"
	TypeTake      Type = "take"
	TypeUntake    Type = "untake"
	TypeDefer     Type = "defer"
	TypeDelete    Type = "delete"
	TypeReconcile Type = "reconcile"
	TypeShow      Type = "show"
	TypeTest      Type = "test"
)

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type AddArgs struct {
	Name      string
	Dosage    string
	Time      string
	Frequency string
}

// TargetArgs names a medication by id or by case-insensitive name.
type TargetArgs struct {
	Target string
}

type DeferArgs struct {
	Target  string
	Minutes int
}

type ShowArgs struct {
	Subject string
}

type Command struct {
	Type   Type
	Raw    string
	Add    *AddArgs
	Target *TargetArgs
	Defer  *DeferArgs
	Show   *ShowArgs
}

var showSubjects = map[string]bool{"today": true, "history": true, "stats": true}

func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}
	if strings.HasPrefix(raw, "/") {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]

	switch Type(head) {
	case TypeAdd:
		return parseAdd(input, args)
	case TypeTake, TypeUntake, TypeDelete:
		return parseTarget(input, Type(head), args)
	case TypeDefer:
		return parseDefer(input, args)
	case TypeReconcile, TypeTest:
		return Command{Type: Type(head), Raw: input}, nil
	case TypeShow:
		return parseShow(input, args)
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

// parseAdd reads "<name...> <dosage> <HH:MM> [frequency...]".
func parseAdd(raw string, args []string) (Command, error) {
	at := -1
	for i, arg := range args {
		if _, err := model.ParseClock(arg); err == nil {
			at = i
			break
		}
	}
	if at < 2 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "add requires name, dosage and HH:MM"}
	}
	freq := strings.Join(args[at+1:], " ")
	if freq == "" {
		freq = string(model.FrequencyDaily)
	}
	if _, err := model.ParseFrequency(freq); err != nil {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: err.Error()}
	}
	return Command{Type: TypeAdd, Raw: raw, Add: &AddArgs{
		Name:      strings.Join(args[:at-1], " "),
		Dosage:    args[at-1],
		Time:      args[at],
		Frequency: freq,
	}}, nil
}

func parseTarget(raw string, typ Type, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("%s requires a medication", typ)}
	}
	return Command{Type: typ, Raw: raw, Target: &TargetArgs{Target: strings.Join(args, " ")}}, nil
}

func parseDefer(raw string, args []string) (Command, error) {
	if len(args) < 2 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "defer requires a medication and a delay"}
	}
	minutes, err := ParseDelay(args[len(args)-1])
	if err != nil {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: err.Error()}
	}
	return Command{Type: TypeDefer, Raw: raw, Defer: &DeferArgs{Target: strings.Join(args[:len(args)-1], " "), Minutes: minutes}}, nil
}

// ParseDelay accepts whole minutes ("15") or a Go duration ("15m", "1h30m").
func ParseDelay(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n == 0 {
			return 0, fmt.Errorf("delay must not be zero")
		}
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d%time.Minute != 0 || d == 0 {
		return 0, fmt.Errorf("invalid delay %q, use minutes like 15 or 15m", s)
	}
	return int(d / time.Minute), nil
}

func parseShow(raw string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "show requires today, history or stats"}
	}
	subject := strings.ToLower(args[0])
	if !showSubjects[subject] {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("unknown subject: %s", subject)}
	}
	return Command{Type: TypeShow, Raw: raw, Show: &ShowArgs{Subject: subject}}, nil
}
