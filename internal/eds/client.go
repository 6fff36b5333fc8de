package eds

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	sourceServicePrefix   = "org.gnome.evolution.dataserver.Sources"
	calendarServicePrefix = "org.gnome.evolution.dataserver.Calendar"
)

// Client holds a session-bus connection plus the resolved bus names for the
// EDS source registry and calendar factory.
type Client struct {
	conn            *dbus.Conn
	sourceService   string
	calendarService string
}

// Connect opens a session-bus connection to Evolution Data Server. Both EDS
// services carry a version suffix in their bus names (Sources5, Calendar8),
// so discovery picks the newest name under each prefix.
func Connect(ctx context.Context) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	client := &Client{conn: conn}
	if client.sourceService, err = resolveService(conn, sourceServicePrefix); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if client.calendarService, err = resolveService(conn, calendarServicePrefix); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return client, nil
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// resolveService checks running names first so an already-started EDS wins,
// then falls back to activatable names to trigger bus activation on demand.
func resolveService(conn *dbus.Conn, prefix string) (string, error) {
	bus := conn.Object("org.freedesktop.DBus", "/org/freedesktop/DBus")

	for _, method := range []string{
		"org.freedesktop.DBus.ListNames",
		"org.freedesktop.DBus.ListActivatableNames",
	} {
		var names []string
		if err := bus.Call(method, 0).Store(&names); err != nil {
			continue
		}
		if name := newestService(names, prefix); name != "" {
			return name, nil
		}
	}

	return "", fmt.Errorf("dbus service with prefix %q not found", prefix)
}

func newestService(names []string, prefix string) string {
	matches := make([]string, 0, 2)
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			matches = append(matches, name)
		}
	}
	if len(matches) == 0 {
		return ""
	}

	sort.SliceStable(matches, func(i, j int) bool {
		vi, vj := versionSuffix(matches[i], prefix), versionSuffix(matches[j], prefix)
		if vi != vj {
			return vi > vj
		}
		return matches[i] < matches[j]
	})
	return matches[0]
}

func versionSuffix(name, prefix string) int {
	version, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
	if err != nil {
		return 0
	}
	return version
}
