package redis

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/kassist/internal/storage"
)

const (
	fieldActiveIndex      = "active_index"
	fieldUpdatedAt        = "updated_at"
	fieldUsagePrefix      = "usage:"
	fieldCredentialPrefix = "credential:"
)

// ledgerFields flattens a LedgerState into HSET arguments.
func ledgerFields(state storage.LedgerState) []interface{} {
	args := make([]interface{}, 0, 4+2*(len(state.Usage)+len(state.Credentials)))
	args = append(args,
		fieldActiveIndex, strconv.Itoa(state.ActiveIndex),
		fieldUpdatedAt, state.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	for category, total := range state.Usage {
		args = append(args, fieldUsagePrefix+category, formatFloat(total))
	}
	for name, total := range state.Credentials {
		args = append(args, fieldCredentialPrefix+name, formatFloat(total))
	}
	return args
}

// parseLedgerState converts a Redis hash to LedgerState
func parseLedgerState(data map[string]string) (*storage.LedgerState, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	activeIndex, err := strconv.Atoi(data[fieldActiveIndex])
	if err != nil {
		return nil, fmt.Errorf("failed to parse active_index: %w", err)
	}

	state := &storage.LedgerState{
		Usage:       make(map[string]float64),
		Credentials: make(map[string]float64),
		ActiveIndex: activeIndex,
	}

	if raw, ok := data[fieldUpdatedAt]; ok {
		updatedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		state.UpdatedAt = updatedAt
	}

	for field, raw := range data {
		switch {
		case strings.HasPrefix(field, fieldUsagePrefix):
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", field, err)
			}
			state.Usage[strings.TrimPrefix(field, fieldUsagePrefix)] = value
		case strings.HasPrefix(field, fieldCredentialPrefix):
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", field, err)
			}
			state.Credentials[strings.TrimPrefix(field, fieldCredentialPrefix)] = value
		}
	}

	return state, nil
}

// formatFloat uses the shortest representation that parses back to the
// identical float64.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
