// Package link defines the contract between the session controller and the
// GATT transport underneath it, and provides Queue, an implementation of that
// contract over a blocking Transport.
//
// The contract:
//   - every Link method enqueues an operation and returns immediately;
//   - operations run one at a time in FIFO order;
//   - completion callbacks and notification handlers run on link-owned
//     goroutines and are never invoked from within the enqueueing call.
package link
