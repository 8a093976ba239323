// Package keysource loads API keys into the key registry.
//
// Keys come from any number of sources: the keys listed in the main
// configuration, a separate keys file, a Vault KV v2 mount and an SQLite
// access-key table. A Loader merges the sources in order, later sources
// overriding earlier ones, and swaps the result into the registry one
// scheme at a time. A failed load leaves the registry untouched. A source
// that cannot be reached is retried with backoff when WithRetry is set.
//
// Keys can be rotated without a restart: a Refresher re-runs the Loader on
// a cron schedule and a FileWatcher re-runs it when the keys file changes.
package keysource
