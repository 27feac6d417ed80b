// Package pipeline provides the pull-based stages of a bulk extraction:
// regrouping a decoded record sequence into fixed-size chunks and
// dispatching those chunks to a handler under bounded concurrency.
//
// # Basic Usage
//
//	records, _ := decode.New(decode.FormatCSV, body)
//	chunks, err := pipeline.Group(records, 100)
//	if err != nil {
//	    return err
//	}
//	err = pipeline.Dispatch(ctx, chunks, handler, 2, logger)
//
// Stages only read upstream when asked: the dispatcher requests the next
// chunk when it is about to start a handler, so memory stays bounded by
// concurrency+1 chunks regardless of resource size.
package pipeline
