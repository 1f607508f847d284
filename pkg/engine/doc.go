// Package engine orchestrates aggregation runs over a group of addresses.
//
// A run lists every address of the group, fans out one listing per device
// category per address in sequential batches, tallies the settled results
// and persists the tally in the snapshot cache. Individual listing failures
// contribute nothing to the tally and never abort the run; only failures to
// count or list the addresses, a cancelled context observed while
// finalizing, and a failed snapshot write are fatal.
//
// At most one run per key is active at a time. Each run carries a
// generation number; a run whose generation was superseded while it was
// working discards its result instead of writing it.
//
// Basic usage:
//
//	eng := engine.New(backend, store, engine.DefaultConfig())
//	report, err := eng.Run(ctx, groupID, func(s progress.State) {
//	    fmt.Printf("%5.1f%% %s\n", s.Percent, s.Message)
//	})
package engine
