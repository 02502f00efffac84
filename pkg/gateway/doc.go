// Package gateway is an admin API client for the API gateway that fronts
// published services. The workflow engine uses it to provision consumers,
// manage ACL group membership and attach per-consumer plugin configuration
// when access requests are approved.
package gateway
