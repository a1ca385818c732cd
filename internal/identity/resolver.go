package identity

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/angelmondragon/numberpool/pkg/config"
	"github.com/angelmondragon/numberpool/pkg/enums"
)

const (
	accountSessionPrefix = "account:"
	guestSessionPrefix   = "session:"
	guestHashSize        = 16
)

// Resolver maps a request to an Actor. Guests are identified by a keyed
// hash of their address so the raw IP is never stored.
type Resolver struct {
	key             []byte
	guestSessionTTL time.Duration
}

func NewResolver(cfg config.IdentityConfig) (*Resolver, error) {
	salt := strings.TrimSpace(cfg.GuestHashSalt)
	if salt == "" {
		return nil, fmt.Errorf("guest hash salt required")
	}
	key := []byte(salt)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &Resolver{key: key, guestSessionTTL: cfg.GuestSessionTTL}, nil
}

// GuestSessionTTL is how long guest timer state outlives its last write.
func (r *Resolver) GuestSessionTTL() time.Duration {
	return r.guestSessionTTL
}

// Account returns the actor for an authenticated account.
func (r *Resolver) Account(accountID string) Actor {
	return Actor{
		ID:         accountID,
		Kind:       enums.ActorKindAccount,
		SessionKey: accountSessionPrefix + accountID,
	}
}

// Guest returns the actor for an anonymous visitor. sessionID identifies the
// visitor's cart; when absent the cart is keyed by the hashed address.
func (r *Resolver) Guest(remoteAddr, sessionID string) (Actor, error) {
	id, err := r.GuestID(remoteAddr)
	if err != nil {
		return Actor{}, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = id
	}
	return Actor{
		ID:         id,
		Kind:       enums.ActorKindGuest,
		SessionKey: guestSessionPrefix + sessionID,
	}, nil
}

// Resolve prefers the account when present.
func (r *Resolver) Resolve(accountID, remoteAddr, sessionID string) (Actor, error) {
	if accountID = strings.TrimSpace(accountID); accountID != "" {
		return r.Account(accountID), nil
	}
	return r.Guest(remoteAddr, sessionID)
}

// GuestID derives the stable guest actor id for a client address.
func (r *Resolver) GuestID(remoteAddr string) (string, error) {
	ip := normalizeIP(remoteAddr)
	if ip == "" {
		return "", fmt.Errorf("client address required")
	}
	h, err := blake2b.New(guestHashSize, r.key)
	if err != nil {
		return "", fmt.Errorf("init guest hash: %w", err)
	}
	_, _ = h.Write([]byte(ip))
	return enums.GuestActorPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

func normalizeIP(remoteAddr string) string {
	addr := strings.TrimSpace(remoteAddr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	addr = strings.Trim(addr, "[]")
	if ip := net.ParseIP(addr); ip != nil {
		return ip.String()
	}
	return addr
}
