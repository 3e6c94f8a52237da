package agents

// progressPipe serializes progress reports. Transports push into a bounded
// channel; one goroutine drains it, appending to the run's log and then
// forwarding to the caller, so the log order is the order reports were
// accepted.
type progressPipe struct {
	ch   chan string
	done chan struct{}
}

func newProgressPipe(buffer int, run *liveRun, forward func(string)) *progressPipe {
	p := &progressPipe{
		ch:   make(chan string, buffer),
		done: make(chan struct{}),
	}

	go func() {
		defer close(p.done)
		for msg := range p.ch {
			run.append(msg)
			if forward != nil {
				forward(msg)
			}
		}
	}()

	return p
}

// emit blocks while the buffer is full.
func (p *progressPipe) emit(msg string) {
	p.ch <- msg
}

// close stops intake and waits until every accepted report was delivered.
func (p *progressPipe) close() {
	close(p.ch)
	<-p.done
}
