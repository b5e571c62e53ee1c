/*
Package storage persists account profiles.

Two repositories implement account.Repository:

	Memory  in-process map, for tests and throwaway runs
	SQLite  single-file database in WAL mode

Open picks one from configuration.
*/
package storage
