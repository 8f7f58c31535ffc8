package notify

import (
	"context"
	"fmt"
	"strings"
)

type PermissionMode string

const (
	PermissionGranted PermissionMode = "granted"
	PermissionDenied  PermissionMode = "denied"
	PermissionPrompt  PermissionMode = "prompt"
)

func ParsePermissionMode(raw string) (PermissionMode, error) {
	switch m := PermissionMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case PermissionGranted, PermissionDenied, PermissionPrompt:
		return m, nil
	case "":
		return PermissionGranted, nil
	default:
		return "", fmt.Errorf("notify: unknown permission mode %q", raw)
	}
}

// Prompter asks the user for notification permission.
type Prompter func(ctx context.Context) (bool, error)

// DisplayPolicy is the process-wide presentation policy installed once by
// Initialize.
type DisplayPolicy struct {
	Channel     string
	ShowBanner  bool
	PlaySound   bool
	SetBadge    bool
	MaxTriggers int
}

func DefaultDisplayPolicy() DisplayPolicy {
	return DisplayPolicy{
		Channel:     "medication-alarm",
		ShowBanner:  true,
		PlaySound:   true,
		SetBadge:    true,
		MaxTriggers: 64,
	}
}
