package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/pkg/composables"
	"github.com/iota-uz/legacy-migrator/pkg/configuration"
)

// ProvideIdentity reads the caller identity forwarded by the authenticating
// gateway. Requests without a valid user id pass through anonymously; the
// migration gate refuses them.
func ProvideIdentity() mux.MiddlewareFunc {
	conf := configuration.Use()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(conf.UserIDHeader)))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			identity := domain.Identity{
				UserID: userID,
				Email:  strings.TrimSpace(r.Header.Get(conf.UserEmailHeader)),
				Roles:  splitRoles(r.Header.Get(conf.UserRolesHeader)),
			}
			logger := composables.UseLogger(r.Context()).WithField("user", userID)
			ctx := composables.WithLogger(composables.WithIdentity(r.Context(), identity), logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func splitRoles(v string) []string {
	var roles []string
	for _, part := range strings.Split(v, ",") {
		if role := strings.TrimSpace(part); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}
