// Package audience turns a notification target descriptor into the concrete
// set of recipient user IDs.
//
// Descriptors name a target type and a list of IDs whose meaning depends on
// the type:
//
//	all       every active user (IDs ignored)
//	role      active users holding one of the role IDs
//	division  active users with an active membership in one of the divisions
//	user      the listed user IDs as given
//
// Resolution is a point-in-time snapshot; callers persist the result.
package audience

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// TargetType names an audience kind.
type TargetType string

const (
	TargetAll      TargetType = "all"
	TargetRole     TargetType = "role"
	TargetDivision TargetType = "division"
	TargetUser     TargetType = "user"
)

// Valid reports whether t is a known target type.
func (t TargetType) Valid() bool {
	switch t {
	case TargetAll, TargetRole, TargetDivision, TargetUser:
		return true
	}
	return false
}

// ErrMalformedTarget marks a descriptor that cannot be resolved. It is
// logged by the resolver and never surfaced to callers of Resolve.
var ErrMalformedTarget = errors.New("malformed audience target")

// RawID is a target ID as received on the wire: a JSON number or a string.
// Values that are not positive integers are dropped by ParseIDs.
type RawID string

// UnmarshalJSON accepts numbers and strings. Other JSON values decode to an
// empty RawID rather than failing the whole payload.
func (r *RawID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = RawID(s)
		return nil
	}
	if len(b) > 0 && (b[0] == '-' || (b[0] >= '0' && b[0] <= '9')) {
		*r = RawID(b)
		return nil
	}
	*r = ""
	return nil
}

// Target is a parsed audience descriptor.
type Target struct {
	Type TargetType
	IDs  []uint
}

// NewTarget builds a Target from wire values. Invalid IDs are dropped; an
// unknown type is kept so the resolver can log it.
func NewTarget(targetType string, ids []RawID) Target {
	return Target{
		Type: TargetType(strings.ToLower(strings.TrimSpace(targetType))),
		IDs:  ParseIDs(ids),
	}
}

// ParseIDs converts raw IDs to a sorted, de-duplicated list of positive
// integers, silently dropping anything else.
func ParseIDs(raw []RawID) []uint {
	seen := make(map[uint]struct{}, len(raw))
	out := make([]uint, 0, len(raw))
	for _, r := range raw {
		n, err := strconv.ParseUint(strings.TrimSpace(string(r)), 10, 64)
		if err != nil || n == 0 {
			continue
		}
		id := uint(n)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Directory is the read surface over users, roles, and memberships.
type Directory interface {
	ActiveUserIDs(ctx context.Context) ([]uint, error)
	UserIDsByRoles(ctx context.Context, roleIDs []uint) ([]uint, error)
	UserIDsByDivisions(ctx context.Context, divisionIDs []uint) ([]uint, error)
}

// Resolver expands targets against a Directory.
type Resolver struct {
	dir Directory
}

// NewResolver returns a Resolver over dir.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve returns the sorted, de-duplicated recipients of t. Unknown target
// types resolve to no recipients. Directory errors are returned.
func (r *Resolver) Resolve(ctx context.Context, t Target) ([]uint, error) {
	var (
		ids []uint
		err error
	)
	switch t.Type {
	case TargetAll:
		ids, err = r.dir.ActiveUserIDs(ctx)
	case TargetUser:
		ids = t.IDs
	case TargetRole:
		if len(t.IDs) > 0 {
			ids, err = r.dir.UserIDsByRoles(ctx, t.IDs)
		}
	case TargetDivision:
		if len(t.IDs) > 0 {
			ids, err = r.dir.UserIDsByDivisions(ctx, t.IDs)
		}
	default:
		log.Warn().Err(ErrMalformedTarget).Str("target_type", string(t.Type)).Msg("unknown target type; no recipients")
		return []uint{}, nil
	}
	if err != nil {
		return nil, err
	}
	return dedupe(ids), nil
}

func dedupe(ids []uint) []uint {
	out := make([]uint, 0, len(ids))
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
