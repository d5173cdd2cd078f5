package server

import (
	"net"
	"sync"
	"time"

	"github.com/dnsgate/dnsgate/dnswire"
)

// Job is one parsed request awaiting a worker. It is owned by the queue
// until popped, then by the popping worker until the response is sent.
type Job struct {
	Addr     *net.UDPAddr
	Req      *dnswire.Message
	Received time.Time
}

// jobQueue is a FIFO with a companion wakeup signal. There is no hard
// capacity; admission control happens in the receiver before enqueue.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []*Job
	signal chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{signal: make(chan struct{}, 1)}
}

// Push enqueues job and wakes one waiting worker.
func (q *jobQueue) Push(job *Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop returns the head job or nil without blocking.
func (q *jobQueue) Pop() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil
	}
	job := q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	return job
}

// Wait blocks until a push signal arrives or timeout passes.
func (q *jobQueue) Wait(timeout time.Duration) {
	select {
	case <-q.signal:
	case <-time.After(timeout):
	}
}

// Len returns the number of queued jobs.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
