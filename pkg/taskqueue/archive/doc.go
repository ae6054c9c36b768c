// Package archive stores tasks evicted from the task queue in SQLite.
//
// The queue's retention sweep hands evicted completed and failed tasks to
// Archive.Archive; they remain queryable by id, status, type and completion
// time until Prune removes them:
//
//	a, err := archive.New(&cfg.Archive)
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//	queue, err := taskqueue.New(&cfg.Queue, executor, taskqueue.WithArchive(a))
//
// The database uses the pure-Go modernc.org/sqlite driver in WAL mode with a
// single connection.
package archive
