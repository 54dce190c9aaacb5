package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rudransh-shrivastava/exchangelink/internal/client/dashboard"
	"github.com/rudransh-shrivastava/exchangelink/internal/config"
	"github.com/rudransh-shrivastava/exchangelink/internal/db"
	"github.com/rudransh-shrivastava/exchangelink/internal/logger"
	"github.com/rudransh-shrivastava/exchangelink/internal/node"
	"github.com/rudransh-shrivastava/exchangelink/internal/notify"
	"github.com/rudransh-shrivastava/exchangelink/internal/protocol"
	"github.com/rudransh-shrivastava/exchangelink/internal/rates"
	"github.com/rudransh-shrivastava/exchangelink/internal/signaling"
	"github.com/rudransh-shrivastava/exchangelink/internal/store"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type stores struct {
	db    *gorm.DB
	prefs *store.PreferenceStore
	logs  *store.LogStore
}

func openStores(path string) (*stores, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	gdb, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	return &stores{
		db:    gdb,
		prefs: store.NewPreferenceStore(gdb),
		logs:  store.NewLogStore(gdb),
	}, nil
}

func (s *stores) Close() error {
	return db.Close(s.db)
}

// app wires the session node to the dashboard for the interactive client.
type app struct {
	*stores
	node *node.Node
	dash *dashboard.Dashboard
	log  *logrus.Logger
}

func openApp(ctx context.Context, c config.Config, out io.Writer, notifier notify.Notifier, onLog func(db.LogEntry)) (*app, error) {
	log := logger.New(out, c.Log.Level)

	st, err := openStores(c.Database.Path)
	if err != nil {
		return nil, err
	}

	n, err := node.New(node.Options{
		Broker: node.NewBroker(&signaling.Dialer{
			URL:               c.Broker.URL,
			HeartbeatInterval: c.Heartbeat,
			Logger:            log,
		}),
		ICEServers: c.ICE.Servers,
		Notifier:   notifier,
		Reconnect:  reconnectPolicy(c.Reconnect),
		Logger:     log,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	dash, err := dashboard.New(ctx, dashboard.Config{
		Preferences: st.prefs,
		Logs:        st.logs,
		Session:     n,
		Quoter:      rates.NewClient(c.Rates.BitcoinURL, c.Rates.USDURL, c.Rates.Timeout),
		ShareBase:   c.Share.BaseURL,
		OnLog:       onLog,
		Logger:      log,
	})
	if err != nil {
		_ = n.Close()
		_ = st.Close()
		return nil, err
	}

	return &app{stores: st, node: n, dash: dash, log: log}, nil
}

// start registers with the broker. The dashboard connects to the stored
// partner once registration reports disconnected.
func (a *app) start() error {
	a.node.OnMessage(a.dash.HandleMessage)
	return a.node.Initialize(a.dash.LocalID(), a.dash.HandleStatus)
}

func (a *app) Close() error {
	_ = a.node.Close()
	return a.stores.Close()
}

func reconnectPolicy(c config.ReconnectConfig) node.Policy {
	return node.Policy{
		Delay:       c.Delay,
		MaxAttempts: c.MaxAttempts,
		Multiplier:  c.Multiplier,
	}
}

// parseRole accepts a role name or its currency.
func parseRole(s string) (protocol.Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BITCOIN", "BTC":
		return protocol.RoleBitcoin, nil
	case "USA", "USD":
		return protocol.RoleUSA, nil
	default:
		return "", fmt.Errorf("%w: %q (use BITCOIN or USA)", dashboard.ErrBadRole, s)
	}
}
