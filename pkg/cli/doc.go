// Package cli provides the beacon operator command-line interface.
//
// The commands talk to Redis directly through the same repository and
// analytics components the API server uses, so they work while the server
// is down and are handy for resetting test environments.
//
// # Commands
//
//	beacon health
//	beacon dashboard
//	beacon user -limit 50 user_00042
//	beacon event evt_1a2b3c4d5e6f
//	beacon generate 500
//	beacon aggregate
//	beacon aggregate -snapshot
//	beacon cleanup -compact
//	beacon flush -yes
//
// Every command accepts -timeout (default 30s). Results are printed to stdout
// as indented JSON; progress and warnings go to the logrus logger on stderr.
//
// Connection settings come from the same environment variables as the
// server (REDIS_URL, REDIS_HOST, ...), optionally loaded from a .env file.
package cli
