package channel

import (
	"encoding/json"
	"sync"

	"boardsync/internal/model"
)

const pipeBuffer = 64

type pipeState struct {
	done      chan struct{}
	closeOnce sync.Once
}

func (s *pipeState) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

type pipeEnd struct {
	in    <-chan []byte
	out   chan<- []byte
	state *pipeState
}

// Pipe returns two connected in-memory Channels. Every message is JSON
// encoded on Send and decoded on Receive, so both ends see exactly what a
// network peer would. Closing either end closes both.
func Pipe() (Channel, Channel) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	st := &pipeState{done: make(chan struct{})}
	return &pipeEnd{in: ba, out: ab, state: st}, &pipeEnd{in: ab, out: ba, state: st}
}

func (p *pipeEnd) Send(msg model.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case <-p.state.done:
		return ErrClosed
	default:
	}

	select {
	case p.out <- raw:
		return nil
	case <-p.state.done:
		return ErrClosed
	}
}

func (p *pipeEnd) Receive() (model.Message, error) {
	var raw []byte
	select {
	case raw = <-p.in:
	case <-p.state.done:
		return model.Message{}, ErrClosed
	}

	var msg model.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

func (p *pipeEnd) Close() error {
	p.state.close()
	return nil
}
