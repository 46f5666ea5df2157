package web

import (
	"net/http"
	"strings"

	"github.com/fieldstone/samplehub/internal/sample"
)

// identityFrom reads the forwarded caller identity headers. The gateway
// in front of this service authenticates the user and forwards the
// result; this service never re-validates credentials, it only carries
// the identity through to extraction directories and the assignment
// service.
func identityFrom(r *http.Request) sample.Identity {
	id := sample.Identity{
		Authenticated: strings.EqualFold(r.Header.Get("X-Authenticated"), "true"),
		Username:      r.Header.Get("X-Username"),
	}
	if roles := r.Header.Get("X-Roles"); roles != "" {
		for _, role := range strings.Split(roles, ",") {
			if role = strings.TrimSpace(role); role != "" {
				id.Roles = append(id.Roles, role)
			}
		}
	}
	return id
}
