package api

import (
	"context"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/odvcencio/memorybank/internal/auth"
)

const defaultProjectRootHeader = "X-Memorybank-Project-Root"

type projectRootKey struct{}

type projectRootOptions struct {
	headerName string
}

func newProjectRootOptions(headerName string) projectRootOptions {
	name := strings.TrimSpace(headerName)
	if name == "" {
		name = defaultProjectRootHeader
	}
	return projectRootOptions{headerName: textproto.CanonicalMIMEHeaderKey(name)}
}

// projectRootMiddleware copies the project root header into the request
// context. Requests whose token does not cover the root are rejected.
func projectRootMiddleware(opts projectRootOptions) middlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			root := strings.TrimSpace(r.Header.Get(opts.headerName))
			if root == "" {
				next.ServeHTTP(w, r)
				return
			}
			if claims := auth.GetClaims(r.Context()); claims != nil && !claims.AllowsRoot(root) {
				jsonError(w, "project root not permitted for this token", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(withProjectRoot(r.Context(), root)))
		})
	}
}

func withProjectRoot(ctx context.Context, root string) context.Context {
	return context.WithValue(ctx, projectRootKey{}, root)
}

func projectRootFromContext(ctx context.Context) (string, bool) {
	root, ok := ctx.Value(projectRootKey{}).(string)
	return root, ok && root != ""
}
