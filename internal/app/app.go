package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/akash1114/flowbuddy-schedule/internal/api"
	"github.com/akash1114/flowbuddy-schedule/internal/config"
	"github.com/akash1114/flowbuddy-schedule/internal/eds"
	"github.com/akash1114/flowbuddy-schedule/internal/identity"
	"github.com/akash1114/flowbuddy-schedule/internal/resolver"
	"github.com/akash1114/flowbuddy-schedule/internal/slot"
	"github.com/akash1114/flowbuddy-schedule/internal/state"
)

func Run(ctx context.Context, args []string, cfg config.Runtime, stdout io.Writer) error {
	cmd, params, err := parseArgs(args)
	if err != nil {
		return err
	}

	if cmd == "identity" {
		deviceID, idErr := ensureIdentity(cfg)
		if idErr != nil {
			return idErr
		}
		_, _ = fmt.Fprintln(stdout, deviceID)
		return nil
	}

	res, cleanup := buildResolver(ctx, cfg)
	defer cleanup()

	res.Refresh(ctx)

	switch cmd {
	case "conflicts":
		return writeConflicts(stdout, res)
	case "refresh":
		return writeSummary(stdout, res.LastRefresh())
	case "check":
		taken := res.IsSlotTaken(params[0], params[1], params[2:]...)
		if taken {
			_, _ = fmt.Fprintln(stdout, "taken")
		} else {
			_, _ = fmt.Fprintln(stdout, "free")
		}
		return nil
	default:
		return fmt.Errorf("unsupported command %q", cmd)
	}
}

func parseArgs(args []string) (command string, params []string, err error) {
	if len(args) == 0 {
		return "conflicts", nil, nil
	}

	switch strings.TrimSpace(args[0]) {
	case "conflicts", "refresh", "identity":
		if len(args) > 1 {
			return "", nil, fmt.Errorf("unexpected argument %q", args[1])
		}
		return strings.TrimSpace(args[0]), nil, nil
	case "check":
		if len(args) < 3 {
			return "", nil, fmt.Errorf("usage: flowbuddy-schedule check DAY TIME [IGNORE...]")
		}
		return "check", args[1:], nil
	default:
		return "", nil, fmt.Errorf("usage: flowbuddy-schedule <conflicts|check DAY TIME [IGNORE...]|refresh|identity>")
	}
}

// buildResolver wires both conflict sources. An unreachable calendar bus
// degrades to a no-conflict source rather than failing the command.
func buildResolver(ctx context.Context, cfg config.Runtime) (*resolver.Resolver, func()) {
	deviceID, err := ensureIdentity(cfg)
	if err != nil {
		slog.Warn("identity unavailable, conflict map will stay empty", "err", err)
		deviceID = ""
	}

	tasks := api.NewClient(cfg.APIBaseURL, cfg.Timeout)

	var conflicts resolver.ConflictSource = noConflictSource{}
	cleanup := func() {}
	client, err := eds.Connect(ctx)
	if err != nil {
		slog.Warn("device calendars unavailable", "err", err)
	} else {
		conflicts = calendarSource{client: client, reservedName: cfg.CalendarName}
		cleanup = func() {
			_ = client.Close()
		}
	}

	return resolver.New(tasks, conflicts, deviceID, cfg.LookaheadDays, slog.Default()), cleanup
}

func ensureIdentity(cfg config.Runtime) (string, error) {
	if err := state.EnsureDir(cfg.StateDir); err != nil {
		return "", err
	}
	return identity.EnsureDeviceID(cfg.IdentityPath)
}

type calendarSource struct {
	client       *eds.Client
	reservedName string
}

func (s calendarSource) LoadConflicts(ctx context.Context, windowStart, windowEnd time.Time) (slot.OccupiedMap, error) {
	return s.client.LoadConflicts(ctx, s.reservedName, windowStart, windowEnd)
}

type noConflictSource struct{}

func (noConflictSource) LoadConflicts(context.Context, time.Time, time.Time) (slot.OccupiedMap, error) {
	return slot.NewOccupiedMap(), nil
}

func writeConflicts(w io.Writer, res *resolver.Resolver) error {
	payload, err := json.MarshalIndent(res.Occupied(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal conflicts: %w", err)
	}
	if _, err := w.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write conflicts: %w", err)
	}
	return nil
}

func writeSummary(w io.Writer, report resolver.Report) error {
	line := fmt.Sprintf("refreshed: %d day(s), %d slot(s)", report.Days, report.Slots)
	if report.Degraded() {
		line += " (degraded: source errors suppressed)"
	}
	if _, err := fmt.Fprintln(w, line); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
