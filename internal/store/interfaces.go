package store

import (
	"context"

	"github.com/rudransh-shrivastava/exchangelink/internal/db"
	"github.com/rudransh-shrivastava/exchangelink/internal/protocol"
)

// PreferenceRepository persists the identity, role and partner of this
// installation.
type PreferenceRepository interface {
	LocalID(ctx context.Context) (string, error)
	EnsureLocalID(ctx context.Context, generate func() (string, error)) (string, error)
	Role(ctx context.Context) (protocol.Role, error)
	SetRole(ctx context.Context, role protocol.Role) error
	ClearRole(ctx context.Context) error
	PartnerID(ctx context.Context) (string, error)
	SetPartnerID(ctx context.Context, id string) error
	ClearPartnerID(ctx context.Context) error
}

// LogRepository persists the dashboard transmission log.
type LogRepository interface {
	AddLog(ctx context.Context, from protocol.Role, message string, typ db.LogType) (db.LogEntry, error)
	RecentLogs(ctx context.Context, limit int) ([]db.LogEntry, error)
}
