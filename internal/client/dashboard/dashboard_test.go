package dashboard

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/exchangelink/internal/db"
	"github.com/rudransh-shrivastava/exchangelink/internal/logger"
	"github.com/rudransh-shrivastava/exchangelink/internal/node"
	"github.com/rudransh-shrivastava/exchangelink/internal/pairing"
	"github.com/rudransh-shrivastava/exchangelink/internal/protocol"
	"github.com/rudransh-shrivastava/exchangelink/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu       sync.Mutex
	role     protocol.Role
	sent     []protocol.Message
	sendErr  error
	connErr  error
	connects chan string
}

func newFakeSession() *fakeSession {
	return &fakeSession{connects: make(chan string, 16)}
}

func (f *fakeSession) ConnectToPartner(partnerID string) error {
	f.connects <- partnerID
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connErr
}

func (f *fakeSession) SendData(_ context.Context, msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSession) SetRole(role protocol.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.role = role
}

func (f *fakeSession) Role() protocol.Role {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.role
}

type fakeQuoter struct {
	quote string
	err   error
}

func (q fakeQuoter) Quote(context.Context, protocol.Role) (string, error) {
	return q.quote, q.err
}

type harness struct {
	dash    *Dashboard
	session *fakeSession
	prefs   *store.PreferenceStore
	logs    *store.LogStore
	entries []db.LogEntry
}

func newHarness(t *testing.T, quoter Quoter) *harness {
	t.Helper()

	gdb, err := db.Open(filepath.Join(t.TempDir(), "dashboard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })

	h := &harness{
		session: newFakeSession(),
		prefs:   store.NewPreferenceStore(gdb),
		logs:    store.NewLogStore(gdb),
	}
	h.dash = h.open(t, quoter)
	return h
}

func (h *harness) open(t *testing.T, quoter Quoter) *Dashboard {
	t.Helper()

	d, err := New(context.Background(), Config{
		Preferences: h.prefs,
		Logs:        h.logs,
		Session:     h.session,
		Quoter:      quoter,
		ShareBase:   "https://exchangelink.app/",
		OnLog:       func(e db.LogEntry) { h.entries = append(h.entries, e) },
		Logger:      logger.Discard(),
	})
	require.NoError(t, err)
	return d
}

func (h *harness) waitConnect(t *testing.T) string {
	t.Helper()

	select {
	case id := <-h.session.connects:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for ConnectToPartner")
		return ""
	}
}

func (h *harness) noConnect(t *testing.T) {
	t.Helper()

	select {
	case id := <-h.session.connects:
		t.Fatalf("Unexpected ConnectToPartner(%s)", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewGeneratesAndKeepsLocalID(t *testing.T) {
	h := newHarness(t, fakeQuoter{})

	id := h.dash.LocalID()
	require.Len(t, id, 6)
	assert.Equal(t, pairing.IDPrefix, id[:2])

	again := h.open(t, fakeQuoter{})
	assert.Equal(t, id, again.LocalID())
}

func TestScreenFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fakeQuoter{})

	assert.Equal(t, ScreenRole, h.dash.Screen())

	require.NoError(t, h.dash.SelectRole(ctx, protocol.RoleBitcoin))
	assert.Equal(t, ScreenPairing, h.dash.Screen())
	assert.Equal(t, protocol.RoleBitcoin, h.session.Role())

	id, err := h.dash.LinkPartner(ctx, " excd34 ")
	require.NoError(t, err)
	assert.Equal(t, "EXCD34", id)
	assert.Equal(t, "EXCD34", h.waitConnect(t))
	assert.Equal(t, ScreenDashboard, h.dash.Screen())

	// Reloading from the store lands on the same screen.
	reloaded := h.open(t, fakeQuoter{})
	assert.Equal(t, ScreenDashboard, reloaded.Screen())
	assert.Equal(t, protocol.RoleBitcoin, reloaded.Role())
	assert.Equal(t, "EXCD34", reloaded.PartnerID())

	require.NoError(t, h.dash.Unpair(ctx))
	assert.Equal(t, ScreenPairing, h.dash.Screen())

	require.NoError(t, h.dash.Back(ctx))
	assert.Equal(t, ScreenRole, h.dash.Screen())

	role, err := h.prefs.Role(ctx)
	require.NoError(t, err)
	assert.Empty(t, role)
}

func TestSelectRoleRejectsUnknown(t *testing.T) {
	h := newHarness(t, fakeQuoter{})

	err := h.dash.SelectRole(context.Background(), protocol.Role("EUR"))
	assert.ErrorIs(t, err, ErrBadRole)
	assert.Equal(t, ScreenRole, h.dash.Screen())
}

func TestLinkPartnerFromMagicLink(t *testing.T) {
	h := newHarness(t, fakeQuoter{})

	id, err := h.dash.LinkPartner(context.Background(), "https://exchangelink.app/?connect=EXQW12")
	require.NoError(t, err)
	assert.Equal(t, "EXQW12", id)
	assert.Equal(t, "EXQW12", h.waitConnect(t))
}

func TestLinkPartnerRejectsOwnID(t *testing.T) {
	h := newHarness(t, fakeQuoter{})

	_, err := h.dash.LinkPartner(context.Background(), h.dash.LocalID())
	assert.ErrorIs(t, err, pairing.ErrPartnerIsSelf)
	assert.Empty(t, h.dash.PartnerID())
	h.noConnect(t)
}

func TestLinkPartnerBeforeRegistration(t *testing.T) {
	h := newHarness(t, fakeQuoter{})
	h.session.connErr = node.ErrNotRegistered

	id, err := h.dash.LinkPartner(context.Background(), "EXCD34")
	require.NoError(t, err)
	assert.Equal(t, "EXCD34", h.dash.PartnerID())
	h.waitConnect(t)

	// Registration completing reports disconnected, which reconnects.
	h.session.mu.Lock()
	h.session.connErr = nil
	h.session.mu.Unlock()
	h.dash.HandleStatus(node.StatusDisconnected)
	assert.Equal(t, id, h.waitConnect(t))
	assert.Equal(t, node.StatusDisconnected, h.dash.Status())
}

func TestHandleStatusWithoutPartner(t *testing.T) {
	h := newHarness(t, fakeQuoter{})

	h.dash.HandleStatus(node.StatusDisconnected)
	h.noConnect(t)

	h.dash.HandleStatus(node.StatusError)
	h.noConnect(t)
	assert.Equal(t, node.StatusError, h.dash.Status())
}

func TestShareLink(t *testing.T) {
	h := newHarness(t, fakeQuoter{})

	link, err := h.dash.ShareLink()
	require.NoError(t, err)
	assert.Equal(t, "https://exchangelink.app/?connect="+h.dash.LocalID(), link)
}

func TestSendSuccess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fakeQuoter{quote: "$50,000.00 USD"})
	require.NoError(t, h.dash.SelectRole(ctx, protocol.RoleBitcoin))
	_, err := h.dash.LinkPartner(ctx, "EXCD34")
	require.NoError(t, err)

	entry, err := h.dash.Send(ctx)
	require.NoError(t, err)
	assert.Equal(t, db.LogSuccess, entry.Type)
	assert.Equal(t, "Enviado: $50,000.00 USD", entry.Message)

	require.Len(t, h.session.sent, 1)
	msg := h.session.sent[0]
	assert.Equal(t, protocol.KindRateUpdate, msg.Kind)
	assert.Equal(t, "$50,000.00 USD", msg.Content)
	assert.Equal(t, h.dash.LocalID(), msg.SenderID)
	assert.Equal(t, protocol.RoleBitcoin, msg.SenderRole)

	logs, err := h.dash.Logs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, entry.ID, logs[0].ID)
	assert.Len(t, h.entries, 1)
}

func TestSendNotConnected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fakeQuoter{quote: "$1.00 USD = €0.92 EUR"})
	require.NoError(t, h.dash.SelectRole(ctx, protocol.RoleUSA))
	_, err := h.dash.LinkPartner(ctx, "EXAB12")
	require.NoError(t, err)
	h.session.sendErr = node.ErrNotConnected

	entry, err := h.dash.Send(ctx)
	assert.ErrorIs(t, err, node.ErrNotConnected)
	assert.Equal(t, db.LogError, entry.Type)
	assert.Equal(t, FailureMessage, entry.Message)
	assert.Equal(t, string(protocol.RoleUSA), entry.From)
}

func TestSendQuoteFailure(t *testing.T) {
	ctx := context.Background()
	fetchErr := errors.New("rate service down")
	h := newHarness(t, fakeQuoter{err: fetchErr})
	require.NoError(t, h.dash.SelectRole(ctx, protocol.RoleUSA))
	_, err := h.dash.LinkPartner(ctx, "EXAB12")
	require.NoError(t, err)

	entry, err := h.dash.Send(ctx)
	assert.ErrorIs(t, err, fetchErr)
	assert.Equal(t, db.LogError, entry.Type)
	assert.Empty(t, h.session.sent)
}

func TestSendPreconditions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fakeQuoter{quote: "x"})

	_, err := h.dash.Send(ctx)
	assert.ErrorIs(t, err, ErrNoRole)

	require.NoError(t, h.dash.SelectRole(ctx, protocol.RoleUSA))
	_, err = h.dash.Send(ctx)
	assert.ErrorIs(t, err, ErrNoPartner)

	logs, err := h.dash.Logs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestHandleMessage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fakeQuoter{})

	h.dash.HandleMessage(protocol.NewPing("EXCD34", protocol.RoleUSA))
	h.dash.HandleMessage(protocol.NewRateUpdate("EXCD34", protocol.RoleUSA, "$1.00 USD = €0.92 EUR"))

	logs, err := h.dash.Logs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Recebido: $1.00 USD = €0.92 EUR", logs[0].Message)
	assert.Equal(t, string(protocol.RoleUSA), logs[0].From)
}

func TestScreenString(t *testing.T) {
	assert.Equal(t, "role", ScreenRole.String())
	assert.Equal(t, "pairing", ScreenPairing.String())
	assert.Equal(t, "dashboard", ScreenDashboard.String())
	assert.Equal(t, "unknown", Screen(9).String())
}
