package models

import (
	"time"

	"github.com/lib/pq"
)

// Well-known security group IDs. Group 1 grants site-wide administration,
// group 2 is the implicit group every visitor (including anonymous) belongs to.
const (
	RootGID      int64 = 1
	AnonymousGID int64 = 2
)

// AnonymousUID is the user ID recorded for unauthenticated submitters.
const AnonymousUID = ""

// User represents an application user stored in the users table.
type User struct {
	ID           string        `db:"id" json:"id"`
	Email        string        `db:"email" json:"email"`
	PasswordHash string        `db:"password_hash" json:"-"`
	FullName     string        `db:"full_name" json:"full_name"`
	Groups       pq.Int64Array `db:"groups" json:"groups"`
	Active       bool          `db:"active" json:"active"`
	LastLogin    *time.Time    `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// Viewer is the explicit request context passed into every render, validate
// and save call: who is asking, and which groups they belong to.
type Viewer struct {
	UID    string
	Groups []int64
	IP     string
}

// Anonymous returns true for unauthenticated viewers.
func (v Viewer) Anonymous() bool {
	return v.UID == AnonymousUID
}

// InGroup reports membership of the given security group. Every viewer,
// authenticated or not, belongs to the anonymous group.
func (v Viewer) InGroup(gid int64) bool {
	if gid == AnonymousGID {
		return true
	}
	for _, g := range v.Groups {
		if g == gid {
			return true
		}
	}
	return false
}

// IsRoot reports whether the viewer belongs to the site admin group.
func (v Viewer) IsRoot() bool {
	return v.InGroup(RootGID)
}
