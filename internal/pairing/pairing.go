// Package pairing handles the identifiers two clients exchange out of band.
package pairing

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pion/randutil"
)

const (
	IDPrefix      = "EX"
	ConnectParam  = "connect"
	MaxPartnerLen = 10

	idSuffixLen = 4
	idRunes     = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var (
	ErrEmptyPartner    = errors.New("partner id is empty")
	ErrPartnerTooLong  = fmt.Errorf("partner id longer than %d characters", MaxPartnerLen)
	ErrPartnerIsSelf   = errors.New("partner id is our own id")
	ErrNoConnectParam  = errors.New("link has no connect parameter")
	errBadLinkEncoding = errors.New("malformed link")
)

// GenerateID returns a fresh local identity such as "EX4K9Z".
func GenerateID() (string, error) {
	suffix, err := randutil.GenerateCryptoRandomString(idSuffixLen, idRunes)
	if err != nil {
		return "", fmt.Errorf("generating id: %w", err)
	}
	return IDPrefix + suffix, nil
}

// NormalizePartnerID trims and upper-cases user input and rejects ids that
// cannot name a partner.
func NormalizePartnerID(input, localID string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(input))
	if id == "" {
		return "", ErrEmptyPartner
	}
	if len(id) > MaxPartnerLen {
		return "", ErrPartnerTooLong
	}
	if strings.EqualFold(id, localID) {
		return "", ErrPartnerIsSelf
	}
	return id, nil
}

// ShareLink builds the magic link a partner opens to pair with localID.
func ShareLink(base, localID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}

	q := u.Query()
	q.Set(ConnectParam, localID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseLink accepts either a magic link or a bare id. It returns the partner
// id and, for links, the link with the connect parameter stripped.
func ParseLink(raw string) (id string, stripped string, err error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "?") && !strings.Contains(raw, "://") {
		if raw == "" {
			return "", "", ErrEmptyPartner
		}
		return raw, "", nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", errBadLinkEncoding, err)
	}

	q := u.Query()
	id = q.Get(ConnectParam)
	if id == "" {
		return "", "", ErrNoConnectParam
	}

	q.Del(ConnectParam)
	u.RawQuery = q.Encode()
	return id, u.String(), nil
}
