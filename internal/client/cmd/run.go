package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/rudransh-shrivastava/exchangelink/internal/db"
	"github.com/rudransh-shrivastava/exchangelink/internal/notify"
	"github.com/spf13/cobra"
)

var (
	runRole    string
	runConnect string
	runNotify  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "starts the interactive dashboard",
	Long:  `registers with the broker, connects to the paired partner and opens the interactive dashboard`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runDashboard(ctx)
	},
}

func init() {
	runCmd.Flags().StringVar(&runRole, "role", "", "role to play (BITCOIN or USA)")
	runCmd.Flags().StringVar(&runConnect, "connect", "", "partner id or magic link to pair with")
	runCmd.Flags().BoolVar(&runNotify, "notify", true, "show rate notifications from the partner")
}

func newCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("/send"),
		readline.PcItem("/pair"),
		readline.PcItem("/unpair"),
		readline.PcItem("/role",
			readline.PcItem("BITCOIN"),
			readline.PcItem("USA"),
		),
		readline.PcItem("/status"),
		readline.PcItem("/log"),
		readline.PcItem("/link"),
		readline.PcItem("/help"),
		readline.PcItem("/exit"),
	)
}

func runDashboard(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		HistoryFile:     filepath.Join(os.TempDir(), "exchangelink_history"),
		AutoComplete:    newCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "/exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	out := rl.Stdout()
	notifier := notify.NewTerminal(out, func() bool { return runNotify })

	a, err := openApp(ctx, cfg, rl.Stderr(), notifier, func(e db.LogEntry) { printEntry(out, e) })
	if err != nil {
		return err
	}
	defer a.Close()

	sh := newShell(a.dash, out)

	if runRole != "" {
		role, err := parseRole(runRole)
		if err != nil {
			return err
		}
		if err := a.dash.SelectRole(ctx, role); err != nil {
			return err
		}
	}
	if err := a.start(); err != nil {
		return err
	}
	if runConnect != "" {
		if _, err := a.dash.LinkPartner(ctx, runConnect); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		_ = rl.Close()
	}()

	return shellLoop(ctx, rl, sh)
}

func shellLoop(ctx context.Context, rl *readline.Instance, sh *shell) error {
	sh.hint()
	rl.SetPrompt(sh.prompt())

	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if len(line) == 0 {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if sh.exec(ctx, line) {
			return nil
		}
		rl.SetPrompt(sh.prompt())
	}
}
