// Package metrics holds the Prometheus counters shared across
// diffsyncd's core packages, so internal/api can expose them at
// /metrics without those packages importing internal/api back.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoomsLoaded counts successful adapter.GetData loads made on a cache
	// miss in internal/roomstore; failed loads are not counted.
	RoomsLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diffsyncd_rooms_loaded_total",
		Help: "Rooms loaded from the storage adapter into the in-memory cache.",
	})

	// EditsProcessed counts individual edits processed by internal/edit,
	// summed across every accepted edit message, whether or not each
	// edit matched the shadow's versions and was applied.
	EditsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diffsyncd_edits_processed_total",
		Help: "Edits received in accepted edit messages, applied or rejected.",
	})

	// SavesIssued counts adapter.StoreData calls actually made.
	SavesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diffsyncd_saves_issued_total",
		Help: "StoreData calls issued by the save coalescer.",
	})

	// SavesCoalesced counts save requests that arrived while a save was
	// already in flight and were merged into its follow-up save instead
	// of triggering a StoreData call of their own.
	SavesCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diffsyncd_saves_coalesced_total",
		Help: "Save requests merged into an already in-flight save.",
	})

	// SaveFailures counts StoreData calls that returned an error.
	SaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diffsyncd_save_failures_total",
		Help: "StoreData calls that returned an error.",
	})
)
