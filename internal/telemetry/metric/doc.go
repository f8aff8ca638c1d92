// Package metric defines the Prometheus metrics of the fidloc binaries.
//
// The server records HTTP traffic and location writes; the field agent
// records sync passes, queue depth and connectivity. Storage size is
// exported by a collector that reads the KV engine on scrape. All metric
// sets are nil-safe so components can run without a registry.
package metric
