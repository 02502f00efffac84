// Package idp talks to the external OIDC/UMA identity broker that mints and
// manages credentials for product environments.
//
// It covers three concerns: provider discovery (cached locally and in redis,
// with concurrent fetches deduplicated), dynamic client registration against
// the broker's registration endpoint, and service-account token acquisition
// via the client-credentials grant.
package idp
