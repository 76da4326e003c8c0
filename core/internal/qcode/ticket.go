package qcode

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Ticket is the security context of the calling user.
type Ticket struct {
	UserID             int64   `yaml:"user_id" json:"user_id"`
	MandatorID         int64   `yaml:"mandator_id" json:"mandator_id"`
	GlobalSupervisor   bool    `yaml:"global_supervisor" json:"global_supervisor"`
	MandatorSupervisor bool    `yaml:"mandator_supervisor" json:"mandator_supervisor"`
	Grants             []Grant `yaml:"grants" json:"grants"`
}

// Grant is a permission of the user on an ACL. Owner grants only apply
// to instances created by the user.
type Grant struct {
	ACL   int64 `yaml:"acl" json:"acl"`
	Read  bool  `yaml:"read" json:"read"`
	Owner bool  `yaml:"owner" json:"owner"`
}

// MayReadACL reports if the ticket may read objects with the ACL that
// were created by owner.
func (t *Ticket) MayReadACL(acl, owner int64) bool {
	if t.GlobalSupervisor {
		return true
	}
	for _, g := range t.Grants {
		if g.ACL != acl || !g.Read {
			continue
		}
		if !g.Owner || owner == t.UserID {
			return true
		}
	}
	return false
}

// ReadableACLs returns the sorted ids of ACLs readable by the ticket.
// With owner set only ACLs granted to the owner of an instance are
// returned.
func (t *Ticket) ReadableACLs(owner bool) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, g := range t.Grants {
		if !g.Read || g.Owner != owner {
			continue
		}
		if _, ok := seen[g.ACL]; ok {
			continue
		}
		seen[g.ACL] = struct{}{}
		ids = append(ids, g.ACL)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PK is the identity of one content version.
type PK struct {
	ID      int64 `yaml:"id" json:"id"`
	Version int   `yaml:"version" json:"version"`
}

func (pk PK) String() string {
	return fmt.Sprintf("%d.%d", pk.ID, pk.Version)
}

// ParsePK parses "id.version" or a bare "id" (version 1).
func ParsePK(s string) (PK, error) {
	s = strings.TrimSpace(s)
	idPart, verPart, hasVer := strings.Cut(s, ".")

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return PK{}, errors.Wrapf(ErrInvalidQuery, "invalid reference %q", s)
	}
	pk := PK{ID: id, Version: 1}

	if hasVer {
		if pk.Version, err = strconv.Atoi(verPart); err != nil {
			return PK{}, errors.Wrapf(ErrInvalidQuery, "invalid reference version %q", s)
		}
	}
	return pk, nil
}
