// Package myauth reads the identity that the gateway resolved for a request
// and answers what that identity may see or do.
package myauth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/MarcGrol/flowershop/lib/myerrors"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

const (
	UserHeader = "X-User-Uid"
	RoleHeader = "X-User-Role"
)

type Identity struct {
	UserUID string
	Role    Role
}

func FromRequest(r *http.Request) (Identity, bool) {
	userUID := strings.TrimSpace(r.Header.Get(UserHeader))
	if userUID == "" {
		return Identity{}, false
	}

	role := Role(strings.ToUpper(strings.TrimSpace(r.Header.Get(RoleHeader))))
	if role != RoleAdmin {
		role = RoleUser
	}

	return Identity{UserUID: userUID, Role: role}, true
}

// RequireIdentity fails with 401 when the request carries no identity.
func RequireIdentity(r *http.Request) (Identity, error) {
	identity, found := FromRequest(r)
	if !found {
		return Identity{}, myerrors.NewUnauthenticatedError(fmt.Errorf("missing user identity"))
	}
	return identity, nil
}

// RequireAdmin fails with 401 without identity and 403 for non-admins.
func RequireAdmin(r *http.Request) (Identity, error) {
	identity, err := RequireIdentity(r)
	if err != nil {
		return Identity{}, err
	}
	if !CanManageCatalog(identity) {
		return Identity{}, myerrors.NewForbiddenError(fmt.Errorf("user %s is not allowed to manage the catalog", identity.UserUID))
	}
	return identity, nil
}

func CanViewStock(identity Identity) bool {
	return identity.Role == RoleAdmin
}

func CanManageCatalog(identity Identity) bool {
	return identity.Role == RoleAdmin
}
