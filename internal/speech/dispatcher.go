package speech

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/verbalearn/tutorcore/internal/models"
	"github.com/verbalearn/tutorcore/internal/stream"
)

// Interrupt is the external cancel flag, polled between sentences and
// chunks. In-flight synthesis calls are not cancelled mid-call.
type Interrupt struct {
	flag atomic.Bool
}

// Trigger sets the flag. Safe from any goroutine.
func (i *Interrupt) Trigger() {
	i.flag.Store(true)
}

// Triggered reports the flag.
func (i *Interrupt) Triggered() bool {
	return i != nil && i.flag.Load()
}

// EventType tags dispatcher events.
type EventType string

const (
	// EventChunk carries synthesized audio for one sentence.
	EventChunk EventType = "chunk"
	// EventError is a recoverable per-sequence failure.
	EventError EventType = "error"
	// EventEnd closes the dispatch and reports the true emitted count.
	EventEnd EventType = "end"
)

// Event is one dispatcher output.
type Event struct {
	Type       EventType
	Seq        int
	Audio      []byte
	Compressed bool
	Cached     bool
	Total      int // set only on the final chunk and the end event
	Sent       int // end event only: chunks actually emitted
	Err        error
}

// Params select the voice and the cache key dimensions for one turn.
type Params struct {
	Language string
	Emotion  string
	Persona  string
	Voice    string
	Speed    float64
}

// Dispatcher synthesizes sentences concurrently and emits audio chunks
// tagged with their original sequence numbers. Delivery order is whatever
// synthesis order produces; the receiver reassembles by Seq.
type Dispatcher struct {
	synth             models.Synthesizer
	cache             *TTSCache
	compressThreshold int
}

// NewDispatcher returns a Dispatcher.
func NewDispatcher(synth models.Synthesizer, cache *TTSCache, compressThreshold int) *Dispatcher {
	if compressThreshold <= 0 {
		compressThreshold = 32 * 1024
	}
	return &Dispatcher{synth: synth, cache: cache, compressThreshold: compressThreshold}
}

type synthResult struct {
	seq    int
	audio  []byte
	cached bool
	err    error
}

// Dispatch consumes sentence events and emits audio events until the
// sentence channel closes or the interrupt fires. One failed sentence does
// not abort the others.
func (d *Dispatcher) Dispatch(ctx context.Context, sentences <-chan stream.Sentence, params Params, interrupt *Interrupt) <-chan Event {
	events := make(chan Event, 16)

	go func() {
		defer close(events)

		results := make(chan synthResult, 16)
		var wg sync.WaitGroup
		launched := 0
		inputOpen := true
		sent := 0

		var done chan struct{}
		finishInput := func() {
			if !inputOpen {
				return
			}
			inputOpen = false
			done = make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
		}

		pending := 0
		emit := func(res synthResult) {
			pending--
			if interrupt.Triggered() {
				return
			}
			if res.err != nil {
				events <- Event{Type: EventError, Seq: res.seq, Err: res.err}
				return
			}
			ev := Event{Type: EventChunk, Seq: res.seq, Audio: res.audio, Cached: res.cached, Compressed: IsCompressed(res.audio)}
			if !inputOpen && pending == 0 {
				ev.Total = launched
			}
			events <- ev
			sent++
		}

		for inputOpen || pending > 0 {
			if interrupt.Triggered() {
				finishInput()
				break
			}
			if inputOpen {
				select {
				case sentence, ok := <-sentences:
					if !ok {
						finishInput()
						continue
					}
					launched++
					pending++
					wg.Add(1)
					go func() {
						defer wg.Done()
						results <- d.synthesize(ctx, sentence, params)
					}()
				case res := <-results:
					emit(res)
				case <-ctx.Done():
					finishInput()
				}
				continue
			}
			select {
			case res := <-results:
				emit(res)
			case <-ctx.Done():
				// Drain nothing further; workers exit on their own.
				pending = 0
			}
		}

		// The producer keeps streaming sentences after an interrupt or
		// cancel; drain them to exhaustion so it never blocks on a
		// dispatch that stopped listening.
		go func() {
			for range sentences {
			}
		}()

		// In-flight synthesis is not mid-call cancellable; wait it out so
		// worker goroutines do not leak, dropping their results.
		if done != nil {
			go func() {
				for range results {
				}
			}()
			<-done
			close(results)
		}

		events <- Event{Type: EventEnd, Total: launched, Sent: sent}
	}()

	return events
}

func (d *Dispatcher) synthesize(ctx context.Context, sentence stream.Sentence, params Params) synthResult {
	key := CacheKey(sentence.Text, params.Language, params.Emotion, params.Persona)

	if d.cache != nil {
		if audio, ok := d.cache.Get(ctx, key); ok {
			return synthResult{seq: sentence.Seq, audio: audio, cached: true}
		}
	}

	audio, err := d.synth.Synthesize(ctx, sentence.Text, params.Voice, params.Speed)
	if err != nil {
		slog.Warn("sentence synthesis failed", "seq", sentence.Seq, "error", err.Error())
		return synthResult{seq: sentence.Seq, err: err}
	}

	if len(audio) > d.compressThreshold {
		if compressed, cerr := Compress(audio); cerr == nil && len(compressed) < len(audio) {
			audio = compressed
		}
	}

	if d.cache != nil {
		d.cache.Set(ctx, key, audio)
	}
	return synthResult{seq: sentence.Seq, audio: audio}
}
