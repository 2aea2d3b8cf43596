// Package crawler walks one site from its root, indexing every reachable in-scope page.
//
// A Coordinator owns one site's crawl: it seeds the root URL, runs a bounded
// fork/join worker pool over the discovered frontier and records the site's final
// status. The Worker handles one URL at a time: politeness delay, cancellation
// check, fetch and index, link filtering and the atomic visited-set claim that
// decides which links become child tasks.
package crawler
