// Package events owns the canonical event record.
//
// A Repository validates and stores events, reads them back by id and merges
// enrichment properties into existing records. Storing an event fans out to
// several keys (record, user index, session index, counters); that fan-out is
// best effort and is not rolled back when a later step fails, so counters
// may briefly disagree with the stored records.
//
// Errors:
//
//   - *ValidationError: the request was rejected before anything was written
//   - connectivity failures (see redisstore.ConnectivityError): retryable
//   - *PlatformError: any other failure, possibly wrapping a *DataCorruptionError
//
// Absence is never an error: GetEvent returns ok == false.
package events
