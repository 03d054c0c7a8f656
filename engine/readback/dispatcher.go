package readback

import (
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
)

// completion is the message a map callback leaves for the frame loop. index is -1 for
// transfers that copy nothing.
type completion struct {
	t      *transfer
	index  int
	status gpucore.MapStatus
}

// completionQueue is a multi-producer, single-consumer FIFO. Map callbacks push from any
// goroutine; only Update drains.
type completionQueue struct {
	mu    *sync.Mutex
	items []completion
}

func newCompletionQueue() *completionQueue {
	return &completionQueue{mu: &sync.Mutex{}}
}

func (q *completionQueue) push(c completion) {
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()
}

func (q *completionQueue) drain() []completion {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *completionQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// drainCompletions processes every queued completion in arrival order. Transfers whose last
// map answer arrived are either discarded (stale), failed, or decoded and delivered.
func (p *plugin) drainCompletions() {
	var ready []*transfer
	for _, c := range p.queue.drain() {
		t := c.t
		if c.index >= 0 {
			p.outstanding--
			cp := t.copies[c.index]
			cp.status = c.status
			cp.done = true
			t.answered++
		}
		if t.complete() {
			ready = append(ready, t)
		}
	}
	if len(ready) == 0 {
		return
	}

	var deliver []*transfer
	for _, t := range ready {
		inst := t.inst
		if p.closed || t.generation != inst.generation {
			p.releaseTransfer(t)
			p.counters.discarded.Add(1)
			Logger().Debug("stale readback discarded", "instance", inst.id)
			continue
		}
		inst.transfer = nil

		if failed := p.readMapped(t); failed != nil {
			p.releaseTransfer(t)
			inst.fail(failed)
			p.counters.failures.Add(1)
			Logger().Warn("readback map failed", "instance", inst.id, "binding", failed.Binding, "status", failed.Status)
			continue
		}
		p.releaseTransfer(t)
		deliver = append(deliver, t)
	}

	p.decode(deliver)

	for _, t := range deliver {
		p.deliver(t)
	}
}

// readMapped copies the mapped range of every copy out of the staging buffer so the buffer
// can be unmapped before decoding. It returns the first failure.
func (p *plugin) readMapped(t *transfer) *ReadbackMapError {
	for _, c := range t.copies {
		if c.status != gpucore.MapStatusSuccess {
			return &ReadbackMapError{Instance: t.inst.id, Binding: c.resource.Binding, Status: c.status}
		}
	}
	for _, c := range t.copies {
		mapped, err := p.device.MappedRange(c.buffer, 0, c.size)
		if err != nil {
			return &ReadbackMapError{Instance: t.inst.id, Binding: c.resource.Binding, Status: gpucore.MapStatusUnknown}
		}
		c.data = make([]byte, len(mapped))
		copy(c.data, mapped)
	}
	return nil
}

// decode turns mapped bytes into payloads on the worker pool. Transfers are independent, so
// each is one task; the WaitGroup is the per-frame barrier.
func (p *plugin) decode(transfers []*transfer) {
	var wg sync.WaitGroup
	for id, t := range transfers {
		if len(t.copies) == 0 {
			continue
		}
		wg.Add(1)
		tCap := t
		p.decodePool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				payloads := make([]Payload, len(tCap.copies))
				for i, c := range tCap.copies {
					payloads[i] = decodeCopy(c)
					c.data = nil
				}
				tCap.payloads = payloads
				return nil, nil
			},
		})
	}
	wg.Wait()
}

// deliver invokes the handler once and advances the instance's repeat counter.
func (p *plugin) deliver(t *transfer) {
	inst := t.inst
	inst.setState(StateReady)

	err := invokeHandler(inst, t.payloads)
	p.counters.completions.Add(1)

	inst.mu.Lock()
	defer inst.mu.Unlock()

	inst.delivered++
	if err != nil {
		inst.state = StateFailed
		inst.err = err
		p.counters.failures.Add(1)
		Logger().Warn("readback handler panicked", "instance", inst.id, "error", err)
		return
	}

	if !inst.limit.IsInfinite() && inst.remaining > 0 {
		inst.remaining--
	}
	if !inst.limit.IsInfinite() && inst.remaining == 0 && inst.removeOnComplete {
		inst.state = StateTerminated
		return
	}
	inst.state = StateIdle
}

// invokeHandler calls OnReadback, turning a panic into a *HandlerPanicError.
func invokeHandler(inst *Instance, payloads []Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerPanicError{Instance: inst.id, Value: r}
		}
	}()
	inst.Descriptor().OnReadback(inst, payloads)
	return nil
}
