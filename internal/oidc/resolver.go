package oidc

import "strings"

// ResolveDestination decides where a flow sends the user. It is the single
// shared resolver for register, update and decline branches; callers perform
// any denial side effect before resolving.
//
// Rules, in order:
//   - interaction present: native clients get the loading page, others a
//     redirect to the return URL (root when empty), regardless of success.
//   - no interaction, not succeeded: redirect to root.
//   - no interaction, succeeded: empty return URL goes to root, a safe local
//     path is followed, anything else fails with ErrInvalidReturnURL.
func ResolveDestination(interaction *Interaction, returnURL string, succeeded bool) (Destination, error) {
	if interaction != nil {
		if interaction.NativeClient {
			return LoadingPage(returnURL), nil
		}
		return RedirectTo(orRoot(returnURL)), nil
	}

	if !succeeded {
		return RedirectTo("/"), nil
	}

	if returnURL == "" {
		return RedirectTo("/"), nil
	}
	if IsLocalURL(returnURL) {
		return RedirectTo(returnURL), nil
	}
	return Destination{}, ErrInvalidReturnURL
}

// IsLocalURL reports whether u is a same-origin relative path. Protocol-
// relative forms ("//host", "/\host") are rejected.
func IsLocalURL(u string) bool {
	if u == "" {
		return false
	}
	if u[0] == '/' {
		return len(u) == 1 || (u[1] != '/' && u[1] != '\\')
	}
	return strings.HasPrefix(u, "~/")
}

func orRoot(u string) string {
	if u == "" {
		return "/"
	}
	return u
}
