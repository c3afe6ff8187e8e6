// Package download runs a batch of tasks on a bounded worker pool. A single
// coordinator goroutine owns the ready queue and every task record; workers
// execute attempts and report back by message.
package download
