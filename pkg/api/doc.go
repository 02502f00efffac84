// Package api is the HTTP surface of the portal core: the feed ingestion
// endpoints the external synchronizer calls, the content publish endpoint,
// and the namespace management API (profile, report export, force delete).
package api
