package directory

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Network operations against the directory are bounded so a stalled bind
// cannot tie up a request worker indefinitely.
const dialTimeout = 10 * time.Second

// Entry is one directory search result.
type Entry struct {
	DN         string
	Attributes map[string][]string
}

// Conn is a bound or bindable directory connection.
type Conn interface {
	// Bind performs a simple bind. The caller cannot distinguish "unknown
	// user" from "wrong password" through the returned error.
	Bind(username, password string) error
	// Search runs a whole-subtree search under baseDN requesting only the
	// listed attributes.
	Search(baseDN, filter string, attributes []string) ([]Entry, error)
	Close() error
}

// Dialer opens directory connections. Implemented by Client for real
// directories and by fakes in tests.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Client dials an LDAP or Active Directory server.
type Client struct {
	serverURL string
	logger    *slog.Logger
}

// NewClient creates a directory client for the given ldap:// or ldaps://
// URL.
func NewClient(serverURL string, logger *slog.Logger) *Client {
	return &Client{
		serverURL: serverURL,
		logger:    logger.With("component", "directory_client"),
	}
}

// Dial opens a connection to the directory server.
func (c *Client) Dial(ctx context.Context) (Conn, error) {
	conn, err := ldap.DialURL(c.serverURL, ldap.DialWithDialer(&net.Dialer{Timeout: dialTimeout}))
	if err != nil {
		c.logger.Error("unable to connect to directory", "server", c.serverURL, "error", err)
		return nil, fmt.Errorf("dialing directory %s: %w", c.serverURL, err)
	}
	conn.SetTimeout(dialTimeout)

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < dialTimeout {
			conn.SetTimeout(remaining)
		}
	}

	return &liveConn{conn: conn}, nil
}

// Escape renders a value safe for interpolation into a search filter, so
// untrusted input can never alter filter structure.
func Escape(value string) string {
	return ldap.EscapeFilter(value)
}

type liveConn struct {
	conn *ldap.Conn
}

func (l *liveConn) Bind(username, password string) error {
	return l.conn.Bind(username, password)
}

func (l *liveConn) Search(baseDN, filter string, attributes []string) ([]Entry, error) {
	req := ldap.NewSearchRequest(
		baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		attributes,
		nil,
	)

	res, err := l.conn.Search(req)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(res.Entries))
	for _, e := range res.Entries {
		attrs := make(map[string][]string, len(e.Attributes))
		for _, a := range e.Attributes {
			attrs[a.Name] = a.Values
		}
		entries = append(entries, Entry{DN: e.DN, Attributes: attrs})
	}
	return entries, nil
}

func (l *liveConn) Close() error {
	return l.conn.Close()
}
