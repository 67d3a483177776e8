package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dukerupert/starchart/internal/auth"
	"github.com/dukerupert/starchart/internal/model"
)

const (
	memberHeader = "X-Member-ID"
	pinHeader    = "X-Member-PIN"
)

// MemberLookup is the slice of the member store the gates need.
type MemberLookup interface {
	GetByID(id int64) (*model.Member, error)
	GetPINHash(id int64) (string, error)
}

// IdentifyMember reads X-Member-ID and puts the acting member in the
// request context. Requests without the header pass through anonymously;
// an unknown or malformed ID is rejected.
func IdentifyMember(members MemberLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(memberHeader)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid member id")
				return
			}
			m, err := members.GetByID(id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to look up member")
				return
			}
			if m == nil {
				writeError(w, http.StatusUnauthorized, "unknown member")
				return
			}

			ctx := auth.WithActor(r.Context(), auth.Actor{MemberID: m.ID, Name: m.Name, Role: m.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireParent admits parents only. A parent with a PIN must also send it
// in X-Member-PIN.
func RequireParent(members MemberLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, ok := auth.FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "member id required")
				return
			}
			if a.Role != model.RoleParent {
				writeError(w, http.StatusForbidden, "parents only")
				return
			}

			hash, err := members.GetPINHash(a.MemberID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to check PIN")
				return
			}
			if hash != "" && !auth.CheckPIN(hash, r.Header.Get(pinHeader)) {
				writeError(w, http.StatusUnauthorized, "incorrect PIN")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ParentCounter reports how many parents exist.
type ParentCounter interface {
	CountParents() (int, error)
}

// UnlessNoParents applies gate only once the family has a parent, so the
// first parent can be created without one.
func UnlessNoParents(counter ParentCounter, gate func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		gated := gate(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n, err := counter.CountParents()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to count parents")
				return
			}
			if n == 0 {
				next.ServeHTTP(w, r)
				return
			}
			gated.ServeHTTP(w, r)
		})
	}
}

// RequireChild admits children only.
func RequireChild(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.MemberID(r.Context()) == 0 {
			writeError(w, http.StatusUnauthorized, "member id required")
			return
		}
		if !auth.IsChild(r.Context()) {
			writeError(w, http.StatusForbidden, "children only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
