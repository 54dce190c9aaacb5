// Package dashboard holds the client's screen state: which role it plays,
// which partner it is paired with and the log of rates sent and received.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rudransh-shrivastava/exchangelink/internal/db"
	"github.com/rudransh-shrivastava/exchangelink/internal/logger"
	"github.com/rudransh-shrivastava/exchangelink/internal/node"
	"github.com/rudransh-shrivastava/exchangelink/internal/pairing"
	"github.com/rudransh-shrivastava/exchangelink/internal/protocol"
	"github.com/rudransh-shrivastava/exchangelink/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	SentPrefix     = "Enviado: "
	ReceivedPrefix = "Recebido: "
	FailureMessage = "Falha: Parceiro não encontrado ou offline."
)

var (
	ErrNoRole    = errors.New("no role selected")
	ErrNoPartner = errors.New("no partner linked")
	ErrBadRole   = errors.New("unknown role")
	ErrSending   = errors.New("a send is already in progress")
)

type Screen int

const (
	ScreenRole Screen = iota
	ScreenPairing
	ScreenDashboard
)

func (s Screen) String() string {
	switch s {
	case ScreenRole:
		return "role"
	case ScreenPairing:
		return "pairing"
	case ScreenDashboard:
		return "dashboard"
	default:
		return "unknown"
	}
}

// Session is the part of node.Node the dashboard drives.
type Session interface {
	ConnectToPartner(partnerID string) error
	SendData(ctx context.Context, msg protocol.Message) error
	SetRole(role protocol.Role)
}

type Quoter interface {
	Quote(ctx context.Context, role protocol.Role) (string, error)
}

type Config struct {
	Preferences store.PreferenceRepository
	Logs        store.LogRepository
	Session     Session
	Quoter      Quoter
	ShareBase   string
	// OnLog is called for every entry added to the transmission log.
	OnLog  func(db.LogEntry)
	Logger *logrus.Logger
}

type Dashboard struct {
	prefs     store.PreferenceRepository
	logs      store.LogRepository
	session   Session
	quoter    Quoter
	shareBase string
	onLog     func(db.LogEntry)
	logger    *logrus.Logger

	mu        sync.Mutex
	localID   string
	role      protocol.Role
	partnerID string
	status    node.Status
	sending   bool
}

// New loads the stored identity, role and partner, generating an identity
// on first run.
func New(ctx context.Context, cfg Config) (*Dashboard, error) {
	if cfg.Preferences == nil || cfg.Logs == nil || cfg.Session == nil || cfg.Quoter == nil {
		return nil, errors.New("dashboard: preferences, logs, session and quoter are required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	d := &Dashboard{
		prefs:     cfg.Preferences,
		logs:      cfg.Logs,
		session:   cfg.Session,
		quoter:    cfg.Quoter,
		shareBase: cfg.ShareBase,
		onLog:     cfg.OnLog,
		logger:    log,
	}

	id, err := d.prefs.EnsureLocalID(ctx, pairing.GenerateID)
	if err != nil {
		return nil, fmt.Errorf("loading local id: %w", err)
	}
	d.localID = id

	role, err := d.prefs.Role(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading role: %w", err)
	}
	if role.Valid() {
		d.role = role
		d.session.SetRole(role)
	}

	partner, err := d.prefs.PartnerID(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading partner: %w", err)
	}
	d.partnerID = partner

	return d, nil
}

func (d *Dashboard) LocalID() string {
	return d.localID
}

func (d *Dashboard) Role() protocol.Role {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.role
}

func (d *Dashboard) PartnerID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.partnerID
}

// Status is the last session status seen by HandleStatus.
func (d *Dashboard) Status() node.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Dashboard) Screen() Screen {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.role == "":
		return ScreenRole
	case d.partnerID == "":
		return ScreenPairing
	default:
		return ScreenDashboard
	}
}

// ShareLink returns the magic link that pairs a partner with this client.
func (d *Dashboard) ShareLink() (string, error) {
	return pairing.ShareLink(d.shareBase, d.localID)
}

func (d *Dashboard) SelectRole(ctx context.Context, role protocol.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrBadRole, role)
	}
	if err := d.prefs.SetRole(ctx, role); err != nil {
		return fmt.Errorf("saving role: %w", err)
	}

	d.mu.Lock()
	d.role = role
	d.mu.Unlock()

	d.session.SetRole(role)
	d.logger.Infof("Role set to %s", role)
	return nil
}

// LinkPartner stores the partner named by input, a bare id or a magic link,
// and starts connecting to it.
func (d *Dashboard) LinkPartner(ctx context.Context, input string) (string, error) {
	raw, _, err := pairing.ParseLink(input)
	if err != nil {
		return "", err
	}
	id, err := pairing.NormalizePartnerID(raw, d.localID)
	if err != nil {
		return "", err
	}

	if err := d.prefs.SetPartnerID(ctx, id); err != nil {
		return "", fmt.Errorf("saving partner: %w", err)
	}

	d.mu.Lock()
	d.partnerID = id
	d.mu.Unlock()

	d.logger.Infof("Paired with %s", id)
	d.connect(id)
	return id, nil
}

func (d *Dashboard) connect(partnerID string) {
	err := d.session.ConnectToPartner(partnerID)
	switch {
	case err == nil:
	case errors.Is(err, node.ErrNotRegistered):
		d.logger.Debugf("Not registered yet, will connect to %s later", partnerID)
	default:
		d.logger.Warnf("Connect to %s failed: %v", partnerID, err)
	}
}

func (d *Dashboard) Unpair(ctx context.Context) error {
	if err := d.prefs.ClearPartnerID(ctx); err != nil {
		return fmt.Errorf("clearing partner: %w", err)
	}

	d.mu.Lock()
	d.partnerID = ""
	d.mu.Unlock()
	return nil
}

// Back returns to role selection. The partner stays linked.
func (d *Dashboard) Back(ctx context.Context) error {
	if err := d.prefs.ClearRole(ctx); err != nil {
		return fmt.Errorf("clearing role: %w", err)
	}

	d.mu.Lock()
	d.role = ""
	d.mu.Unlock()
	return nil
}

// Send fetches the rate for our role and sends it to the partner. The
// outcome is recorded in the transmission log either way.
func (d *Dashboard) Send(ctx context.Context) (db.LogEntry, error) {
	d.mu.Lock()
	role, partner := d.role, d.partnerID
	if d.sending {
		d.mu.Unlock()
		return db.LogEntry{}, ErrSending
	}
	switch {
	case role == "":
		d.mu.Unlock()
		return db.LogEntry{}, ErrNoRole
	case partner == "":
		d.mu.Unlock()
		return db.LogEntry{}, ErrNoPartner
	}
	d.sending = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.sending = false
		d.mu.Unlock()
	}()

	quote, err := d.send(ctx, role)
	if err != nil {
		d.logger.Warnf("Send to %s failed: %v", partner, err)
		entry, logErr := d.addLog(ctx, role, FailureMessage, db.LogError)
		if logErr != nil {
			return entry, errors.Join(err, logErr)
		}
		return entry, err
	}

	d.logger.Infof("Sent %q to %s", quote, partner)
	return d.addLog(ctx, role, SentPrefix+quote, db.LogSuccess)
}

func (d *Dashboard) send(ctx context.Context, role protocol.Role) (string, error) {
	quote, err := d.quoter.Quote(ctx, role)
	if err != nil {
		return "", err
	}

	msg := protocol.NewRateUpdate(d.localID, role, quote)
	if err := d.session.SendData(ctx, msg); err != nil {
		return "", err
	}
	return quote, nil
}

func (d *Dashboard) addLog(ctx context.Context, from protocol.Role, message string, typ db.LogType) (db.LogEntry, error) {
	entry, err := d.logs.AddLog(ctx, from, message, typ)
	if err != nil {
		return entry, fmt.Errorf("saving log: %w", err)
	}
	if d.onLog != nil {
		d.onLog(entry)
	}
	return entry, nil
}

// Logs returns the most recent transmission log entries, newest first.
func (d *Dashboard) Logs(ctx context.Context, limit int) ([]db.LogEntry, error) {
	return d.logs.RecentLogs(ctx, limit)
}

// HandleStatus is the session status callback. A disconnected session is
// reconnected to the linked partner.
//
// It runs on the node loop, so the reconnect is handed to a goroutine.
func (d *Dashboard) HandleStatus(s node.Status) {
	d.mu.Lock()
	d.status = s
	partner := d.partnerID
	d.mu.Unlock()

	if s == node.StatusDisconnected && partner != "" {
		go d.connect(partner)
	}
}

// HandleMessage is the session message callback. Rate updates from the
// partner go to the transmission log.
func (d *Dashboard) HandleMessage(msg protocol.Message) {
	if msg.Kind != protocol.KindRateUpdate {
		return
	}

	if _, err := d.addLog(context.Background(), msg.SenderRole, ReceivedPrefix+msg.Content, db.LogSuccess); err != nil {
		d.logger.Warnf("Failed to log message from %s: %v", msg.SenderID, err)
	}
}
