// Package crawler holds the data model, error taxonomy and repository contracts of the
// sold-listings pipeline, plus the Engine that drives a crawl run:
// seed enumeration, draining the frontier through the fetch gate, parsing and entity
// resolution, one record per transaction.
package crawler
