// Package batch executes per-item remote calls in strictly sequential,
// fixed-size batches.
//
// The remote collection service has no bulk endpoints, so a group with N
// addresses costs N calls per device category. The fetcher bounds the
// concurrency to the batch size and waits for every call of a batch to
// settle before starting the next one:
//
//	fetcher := batch.New(batch.Config{BatchSize: batch.ReadBatchSize, Operation: "list_devices"})
//	summary, err := batch.Run(ctx, fetcher, addresses, fetchOne, func(b batch.Batch[model.Parent, []model.ChildRecord]) {
//		// apply b.Results; no other batch is in flight here
//	})
//
// The batch fetcher:
//   - Partitions items into ceil(N/size) batches in their original order
//   - Runs one goroutine per item of the current batch
//   - Isolates failures: an error or panic only marks that item's Result
//   - Calls onBatch on the calling goroutine after each batch settles
//   - Never retries a failed item
package batch
