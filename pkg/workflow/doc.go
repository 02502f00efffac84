// Package workflow drives access requests from approval through credential
// issuance and gateway provisioning, and handles the compensating cleanup
// paths: revocation of an issued grant and cascading deletion of a product
// environment. Every invocation writes an audit activity before mutating
// external systems and finalizes it with the outcome.
package workflow
