// Package notify shows rate notifications to the local user.
package notify

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/rudransh-shrivastava/exchangelink/internal/protocol"
)

// Tag is shared by every notification, so a new one replaces the last.
const Tag = "exchange-update"

var ErrPermissionDenied = errors.New("notification permission denied")

type Notifier interface {
	Notify(title, body string) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(string, string) error { return nil }

type Permission int

const (
	PermissionDefault Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "default"
	}
}

type Notification struct {
	Title string
	Body  string
	Tag   string
	At    time.Time
}

// Terminal prints notifications to a writer once the user has allowed it.
type Terminal struct {
	out        io.Writer
	prompt     func() bool
	permission Permission
	last       *Notification
	title      *color.Color
	mu         sync.Mutex
}

// NewTerminal creates a notifier writing to out. prompt is asked at most
// once, on the first notification, whether notifications may be shown.
// A nil prompt grants permission.
func NewTerminal(out io.Writer, prompt func() bool) *Terminal {
	if prompt == nil {
		prompt = func() bool { return true }
	}
	return &Terminal{
		out:    out,
		prompt: prompt,
		title:  color.New(color.FgYellow, color.Bold),
	}
}

func (t *Terminal) Permission() Permission {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.permission
}

// RequestPermission asks the prompt if no decision has been made yet.
func (t *Terminal) RequestPermission() Permission {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requestLocked()
}

func (t *Terminal) requestLocked() Permission {
	if t.permission != PermissionDefault {
		return t.permission
	}
	if t.prompt() {
		t.permission = PermissionGranted
	} else {
		t.permission = PermissionDenied
	}
	return t.permission
}

func (t *Terminal) Notify(title, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.requestLocked() != PermissionGranted {
		return ErrPermissionDenied
	}

	t.last = &Notification{Title: title, Body: body, Tag: Tag, At: time.Now()}
	_, err := fmt.Fprintf(t.out, "\r%s %s\n", t.title.Sprint(title), body)
	return err
}

// Last returns the notification currently shown under Tag.
func (t *Terminal) Last() (Notification, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.last == nil {
		return Notification{}, false
	}
	return *t.last, true
}

func TitleFor(role protocol.Role) string {
	if role == protocol.RoleUSA {
		return "💵 Cotação USD"
	}
	return "₿ Cotação BTC"
}
