// Package async provides futures for asynchronous programming with Go generics.
//
// A Future[T] settles exactly once, either with a value or with an error.
// Futures are produced by running a function in a goroutine (Async, Exec) or
// by settling them by hand (Promise), which is how callback-style APIs are
// turned into deferred results.
//
// # Usage
//
// Run a function asynchronously:
//
//	future := async.Async(ctx, 123, fetchUser)
//	user, err := future.Await()
//
// Adapt a callback API:
//
//	f, resolve, reject := async.Promise[*Conn]()
//	pool.Acquire(func(err error, c *Conn) {
//		if err != nil {
//			reject(err)
//			return
//		}
//		resolve(c)
//	})
//
// Chain continuations:
//
//	name := async.Then(future, func(u User) (string, error) {
//		return u.Name, nil
//	})
//
// # Waiting
//
// Await blocks until the future settles; AwaitContext and AwaitWithTimeout bound
// the wait without cancelling the underlying work. WaitAll and WaitAny
// coordinate several futures; ExecAll and ExecAny do the same for futures that
// only carry an error.
//
// # Errors
//
//   - ErrTimeout: AwaitWithTimeout exceeded its duration
//   - ErrNoFutures: WaitAny or ExecAny called with no futures
//   - ErrNilRejection: a promise was rejected with a nil error
//   - ErrPanic: a Then continuation panicked
//
// All operations are safe for concurrent use.
package async
