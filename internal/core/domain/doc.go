// Package domain defines the core domain models for FidLoc.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - Location: a field site (hub, garage, hut, central office) scoped to an organization
//   - PendingRecord: a location write staged locally until it can be synced
//   - APIKey: organization-bound access key for the document API
//   - Errors: domain error codes shared by the server and the client
package domain
