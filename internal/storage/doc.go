// Package storage persists the monitor's durable state:
//   - Monitor configuration (realm, program, destination chat)
//   - The seen-set of proposal ids that were already notified
//
// Both records are independently loadable and default to empty when absent.
package storage
