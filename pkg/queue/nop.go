package queue

import "context"

type nopQueue struct{}

func newNopQueue() Queue {
	return nopQueue{}
}

func (nopQueue) Enqueue(context.Context, []byte) error                { return nil }
func (nopQueue) Dequeue(context.Context) ([]Record, error)            { return nil, nil }
func (nopQueue) Commit(_ context.Context, r []Record) (Result, error) { return Result{len(r), 0}, nil }
func (nopQueue) Failed(_ context.Context, r []Record) (Result, error) { return Result{0, len(r)}, nil }
