// Command searchengine crawls the configured sites into a lemma index and serves the
// search API over it.
//
//	searchengine serve --config config.yaml   # HTTP API (default)
//	searchengine index --config config.yaml   # one foreground indexing run
package main
