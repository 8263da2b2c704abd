// Package dispatch submits experiment work to the job queue and waits for it.
//
// The Dispatcher splits work into jobs, enqueues them through a QueueClient,
// and then polls every job handle on a fixed interval until none is pending.
// Workers that execute the jobs live outside this process.
//
// Submission:
//   - SQL inserts are split into batches of 25 statements, one job per batch
//   - matrix-build, train/test and subset tasks are one job per descriptor,
//     descriptor fields passed as keyword arguments
//   - every job carries the same timeout, result TTL and TTL (365 days), so
//     completion depends on worker availability and never on queue expiry
//
// Waiting:
//   - each poll refreshes every handle and logs done/failed/pending counts
//   - when nothing is pending, results are returned in submission order
//   - failed jobs yield a nil entry; they never abort the wait
//   - there is no deadline; cancel the context to abandon a wait
//
// Limitations:
//   - no retry of failed jobs
//   - jobs already enqueued are left in the queue if a later enqueue fails
package dispatch
