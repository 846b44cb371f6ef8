package integration

import (
	"fmt"
	"net/http"
)

// applyAuth attaches credentials to req per the integration's configured
// Auth kind, resolving ${VAR}-style references against the environment at
// call time (not load time) so a rotated secret takes effect without a
// restart.
func applyAuth(req *http.Request, auth Auth, lookup func(string) (string, bool)) error {
	resolve := func(s string) string { return substituteEnv(s, lookup) }

	switch auth.Kind {
	case "", AuthNone:
		return nil
	case AuthBearer:
		token := resolve(auth.Token)
		if token == "" {
			return fmt.Errorf("integration: bearer auth configured with empty token")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	case AuthBasic:
		req.SetBasicAuth(resolve(auth.Username), resolve(auth.Password))
	case AuthHeader:
		if auth.HeaderName == "" {
			return fmt.Errorf("integration: header auth requires header_name")
		}
		req.Header.Set(auth.HeaderName, resolve(auth.HeaderValue))
	case AuthAPIKey:
		key := resolve(auth.APIKey)
		if auth.QueryParam != "" {
			q := req.URL.Query()
			q.Set(auth.QueryParam, key)
			req.URL.RawQuery = q.Encode()
			return nil
		}
		headerName := auth.HeaderName
		if headerName == "" {
			headerName = "X-API-Key"
		}
		req.Header.Set(headerName, key)
	default:
		return fmt.Errorf("integration: unknown auth kind %q", auth.Kind)
	}
	return nil
}
