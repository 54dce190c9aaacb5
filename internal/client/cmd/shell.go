package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rudransh-shrivastava/exchangelink/internal/client/dashboard"
	"github.com/rudransh-shrivastava/exchangelink/internal/db"
	"github.com/rudransh-shrivastava/exchangelink/internal/node"
	"github.com/schollz/progressbar/v3"
)

const defaultLogLimit = 10

var (
	infoColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	headerColor  = color.New(color.FgMagenta, color.Bold)
)

// shell runs the slash commands of the interactive client.
type shell struct {
	dash *dashboard.Dashboard
	out  io.Writer
	// spin shows progress while a send is in flight and returns a stop func.
	spin func(description string) func()
}

func newShell(dash *dashboard.Dashboard, out io.Writer) *shell {
	return &shell{
		dash: dash,
		out:  out,
		spin: func(description string) func() { return spinner(out, description) },
	}
}

func spinner(out io.Writer, description string) func() {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				_ = bar.Finish()
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

func (s *shell) prompt() string {
	partner := s.dash.PartnerID()
	if partner == "" {
		return color.GreenString("%s> ", s.dash.LocalID())
	}
	return color.GreenString("%s@%s> ", s.dash.LocalID(), partner)
}

// hint tells the user what the current screen expects.
func (s *shell) hint() {
	switch s.dash.Screen() {
	case dashboard.ScreenRole:
		infoColor.Fprintln(s.out, "Choose a role: /role BITCOIN or /role USA")
	case dashboard.ScreenPairing:
		infoColor.Fprintf(s.out, "Your id is %s. Pair with /pair <id or link>\n", s.dash.LocalID())
		if link, err := s.dash.ShareLink(); err == nil {
			infoColor.Fprintf(s.out, "Share: %s\n", link)
		}
	case dashboard.ScreenDashboard:
		infoColor.Fprintf(s.out, "Paired with %s as %s. /send to share the %s rate\n",
			s.dash.PartnerID(), s.dash.Role(), s.dash.Role().Currency())
	}
}

func (s *shell) help() {
	headerColor.Fprintln(s.out, "Commands:")
	fmt.Fprintln(s.out, "  /send              - fetch and send your rate to the partner")
	fmt.Fprintln(s.out, "  /pair <id|link>    - pair with a partner")
	fmt.Fprintln(s.out, "  /unpair            - forget the partner")
	fmt.Fprintln(s.out, "  /role [BITCOIN|USA] - set the role, or clear it without argument")
	fmt.Fprintln(s.out, "  /status            - show id, role, partner and connection")
	fmt.Fprintln(s.out, "  /log [n]           - show the last n transmissions")
	fmt.Fprintln(s.out, "  /link              - show your magic link")
	fmt.Fprintln(s.out, "  /help              - show this help")
	fmt.Fprintln(s.out, "  /exit              - quit")
}

// exec runs one input line. It reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	switch parts[0] {
	case "/help":
		s.help()
	case "/exit", "/quit":
		return true
	case "/send":
		s.send(ctx)
	case "/pair":
		if len(parts) != 2 {
			errorColor.Fprintln(s.out, "Usage: /pair <id or link>")
			return false
		}
		id, err := s.dash.LinkPartner(ctx, parts[1])
		if err != nil {
			errorColor.Fprintf(s.out, "Pairing failed: %v\n", err)
			return false
		}
		successColor.Fprintf(s.out, "Paired with %s\n", id)
		s.hint()
	case "/unpair":
		if err := s.dash.Unpair(ctx); err != nil {
			errorColor.Fprintf(s.out, "Unpair failed: %v\n", err)
			return false
		}
		successColor.Fprintln(s.out, "Partner removed")
		s.hint()
	case "/role":
		s.role(ctx, parts[1:])
	case "/status":
		s.status()
	case "/log":
		s.logs(ctx, parts[1:])
	case "/link":
		link, err := s.dash.ShareLink()
		if err != nil {
			errorColor.Fprintf(s.out, "No link: %v\n", err)
			return false
		}
		fmt.Fprintln(s.out, link)
	default:
		errorColor.Fprintln(s.out, "Unknown command. Use /help.")
	}
	return false
}

func (s *shell) send(ctx context.Context) {
	switch s.dash.Screen() {
	case dashboard.ScreenRole:
		errorColor.Fprintln(s.out, "Choose a role first with /role")
		return
	case dashboard.ScreenPairing:
		errorColor.Fprintln(s.out, "Pair with a partner first with /pair")
		return
	}
	if s.dash.Status() != node.StatusConnected {
		infoColor.Fprintf(s.out, "Partner is %s, trying anyway\n", s.dash.Status())
	}

	stop := s.spin("Sending...")
	_, err := s.dash.Send(ctx)
	stop()

	var nodeErr *node.Error
	if errors.As(err, &nodeErr) {
		errorColor.Fprintf(s.out, "(%s)\n", nodeErr.Hint())
	}
}

func (s *shell) role(ctx context.Context, args []string) {
	if len(args) == 0 {
		if err := s.dash.Back(ctx); err != nil {
			errorColor.Fprintf(s.out, "Clearing role failed: %v\n", err)
			return
		}
		s.hint()
		return
	}

	role, err := parseRole(args[0])
	if err != nil {
		errorColor.Fprintln(s.out, err)
		return
	}
	if err := s.dash.SelectRole(ctx, role); err != nil {
		errorColor.Fprintf(s.out, "Setting role failed: %v\n", err)
		return
	}
	successColor.Fprintf(s.out, "Role set to %s\n", role)
	s.hint()
}

func (s *shell) status() {
	fmt.Fprintf(s.out, "id:      %s\n", s.dash.LocalID())
	fmt.Fprintf(s.out, "role:    %s\n", orNone(string(s.dash.Role())))
	fmt.Fprintf(s.out, "partner: %s\n", orNone(s.dash.PartnerID()))
	fmt.Fprintf(s.out, "status:  %s\n", s.dash.Status())
	fmt.Fprintf(s.out, "screen:  %s\n", s.dash.Screen())
}

func (s *shell) logs(ctx context.Context, args []string) {
	limit := defaultLogLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			errorColor.Fprintln(s.out, "Usage: /log [n]")
			return
		}
		limit = n
	}

	entries, err := s.dash.Logs(ctx, limit)
	if err != nil {
		errorColor.Fprintf(s.out, "Reading log failed: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Fprintln(s.out, "No transmissions yet")
		return
	}
	for _, e := range entries {
		printEntry(s.out, e)
	}
}

func printEntry(out io.Writer, e db.LogEntry) {
	c := successColor
	if e.Type == db.LogError {
		c = errorColor
	}
	c.Fprintf(out, "[%s] %s\n", e.CreatedAt.Format(time.TimeOnly), e.Message)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
