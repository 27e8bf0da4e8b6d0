package event

import "regexp"

// SchemaDescriptor describes the registered payload schema for an event name.
type SchemaDescriptor struct {
	Version     string
	Description string
}

// DefaultSchemaVersion is assumed for event names absent from the catalog.
const DefaultSchemaVersion = "v1"

// catalog is the static registry of known event names. Publishing is not
// restricted to this set; unregistered names fall back to v1.
var catalog = map[string]SchemaDescriptor{
	"user.registered": {
		Version:     "v1",
		Description: "new account created",
	},
	"user.login": {
		Version:     "v1",
		Description: "successful password authentication",
	},
	"user.login_failed": {
		Version:     "v1",
		Description: "failed password authentication",
	},
	"user.locked": {
		Version:     "v1",
		Description: "account locked after repeated failures",
	},
	"user.deactivated": {
		Version:     "v1",
		Description: "account disabled by an administrator",
	},
	"user.reactivated": {
		Version:     "v1",
		Description: "disabled account restored by an administrator",
	},
	"user.sessions_revoked": {
		Version:     "v1",
		Description: "all sessions of an account invalidated",
	},
	"group.created": {
		Version:     "v1",
		Description: "user group created",
	},
	"group.member_added": {
		Version:     "v1",
		Description: "user added to a group",
	},
	"auth.token_issued": {
		Version:     "v1",
		Description: "access token issued",
	},
	"auth.token_refreshed": {
		Version:     "v1",
		Description: "access token renewed from a refresh session",
	},
	"auth.token_revoked": {
		Version:     "v1",
		Description: "refresh session revoked",
	},
	"settings.updated": {
		Version:     "v2",
		Description: "setting row changed; section caches must drop",
	},
	"product.created": {
		Version:     "v1",
		Description: "catalog product created",
	},
	"product.updated": {
		Version:     "v1",
		Description: "catalog product updated",
	},
	"product.option_removed": {
		Version:     "v1",
		Description: "product option pair deleted",
	},
	"pricelist.created": {
		Version:     "v1",
		Description: "price list created",
	},
	"pricelist.updated": {
		Version:     "v1",
		Description: "price list or items updated",
	},
	"ratelimit.blocked": {
		Version:     "v1",
		Description: "client blocked for exceeding request limits",
	},
}

// eventNamePattern is the two-segment domain.event form.
var eventNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*\.[a-z][a-z0-9_]*$`)

// IsValidEventType reports whether name is well-formed and registered in the catalog.
func IsValidEventType(name string) bool {
	if !eventNamePattern.MatchString(name) {
		return false
	}
	_, ok := catalog[name]
	return ok
}

// SchemaVersion returns the registered schema version for name, or
// DefaultSchemaVersion for unknown names.
func SchemaVersion(name string) string {
	if d, ok := catalog[name]; ok {
		return d.Version
	}
	return DefaultSchemaVersion
}

// RegisteredEvents returns the catalog names, for discovery endpoints.
func RegisteredEvents() map[string]SchemaDescriptor {
	out := make(map[string]SchemaDescriptor, len(catalog))
	for k, v := range catalog {
		out[k] = v
	}
	return out
}
