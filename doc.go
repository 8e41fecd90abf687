/*
rxpool allows to run push-based stream pipelines on a shared pool of worker goroutines, and to wait for them to complete.

A pipeline is made of Subjects (hot multicast streams) connected by stages. Stages hop onto the pool through a Coordinator:

- A WorkerPool owns a fixed set of workers fed from an unbounded queue. Submit never blocks. A panicking task is recovered at the worker boundary and logged.
- A Coordinator schedules callbacks onto a WorkerPool and returns a Handle able to cancel them until they start.
- A FanOut schedules one unit of work per input value. Units run on any worker, so outputs may come in disorder.
- An Aggregation folds the first N outputs, then fires a Broadcast which terminates every stream registered on it.
- AwaitAll merges streams and blocks until all of them completed, or one of them failed.

Completion responsibility is spread over streams terminated from different workers. Completing only the stream a stage observes leaves its siblings,
and anything waiting on them, hanging forever: this is why the end of a pipeline is a Broadcast, and why the wait is a merge.

For instance:

	pool, _ := rxpool.NewWorkerPool()
	defer pool.Stop()
	coord := rxpool.NewCoordinator(pool)

	in, out, finished := rxpool.NewSubject[int](), rxpool.NewSubject[int](), rxpool.NewSubject[int]()
	rxpool.NewFanOut(coord, in, out, rxpool.AsWork(func(i int) int { return i * 2 }))
	agg, _ := rxpool.NewAggregation(10, 0, func(sum, i int) int { return sum + i })
	agg.Attach(out, rxpool.NewBroadcast(in, out, finished))

	for i := range 10 {
		in.OnNext(i)
	}
	_ = rxpool.AwaitAll(ctx, in, out, finished)

Pool sizing defaults to twice the CPU count. As for any performance tuning, you should try and tune.
*/

package rxpool
