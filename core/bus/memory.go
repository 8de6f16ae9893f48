package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/actkit/core/logger"
)

// MemoryTransportType is the transport type registered by the Memory plugin.
const MemoryTransportType = "memory"

// ErrBufferFull is returned when a memory queue cannot accept more requests.
var ErrBufferFull = errors.New("memory transport buffer is full")

type memoryJob struct {
	data  []byte
	reply chan []byte
}

// MemoryHub connects buses in the same process.
// Buses using the Memory plugin with the same hub reach each other's
// listeners; messages go through the wire codec as they would over a broker.
type MemoryHub struct {
	mu         sync.Mutex
	queues     map[string]chan memoryJob
	bufferSize int
}

// NewMemoryHub creates a hub whose queues buffer up to bufferSize requests.
func NewMemoryHub(bufferSize int) *MemoryHub {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &MemoryHub{queues: make(map[string]chan memoryJob), bufferSize: bufferSize}
}

func (h *MemoryHub) queue(key string) chan memoryJob {
	h.mu.Lock()
	defer h.mu.Unlock()
	q, ok := h.queues[key]
	if !ok {
		q = make(chan memoryJob, h.bufferSize)
		h.queues[key] = q
	}
	return q
}

// Memory returns a plugin registering an in-process transport on hub.
// workers is the number of consumer goroutines per listener.
func Memory(hub *MemoryHub, workers int) Plugin {
	if workers <= 0 {
		workers = 1
	}
	return NewPlugin("memory-transport", func(b *Bus) error {
		return b.RegisterTransport(MemoryTransportType, &memoryTransport{
			hub:     hub,
			workers: workers,
			logger:  b.logger,
		})
	})
}

type memoryTransport struct {
	hub     *MemoryHub
	workers int
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func (t *memoryTransport) Listen(ctx context.Context, cfg ListenConfig, serve ServeFunc) error {
	q := t.hub.queue(cfg.Pin.String())
	for range t.workers {
		t.wg.Add(1)
		go t.worker(ctx, q, serve)
	}
	return nil
}

func (t *memoryTransport) worker(ctx context.Context, q <-chan memoryJob, serve ServeFunc) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q:
			_, resp, err := Handle(ctx, serve, job.data)
			if err != nil {
				t.logger.Error("dropping undecodable request", logger.Error(err))
				continue
			}
			job.reply <- resp
		}
	}
}

func (t *memoryTransport) Dial(_ context.Context, cfg ClientConfig) (Sender, error) {
	return &memorySender{q: t.hub.queue(cfg.Pin.String())}, nil
}

// Close waits for consumers started by Listen to stop.
func (t *memoryTransport) Close() error {
	t.wg.Wait()
	return nil
}

type memorySender struct {
	q chan memoryJob
}

func (s *memorySender) Send(ctx context.Context, msg Message) (any, error) {
	data, err := EncodeRequest(NewRequest(msg, ""))
	if err != nil {
		return nil, err
	}

	job := memoryJob{data: data, reply: make(chan []byte, 1)}
	select {
	case s.q <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return nil, fmt.Errorf("%w: %d queued", ErrBufferFull, len(s.q))
	}

	select {
	case resp := <-job.reply:
		return DecodeResponse(resp)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *memorySender) Close() error {
	return nil
}
