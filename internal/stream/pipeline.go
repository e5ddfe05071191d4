package stream

import (
	"context"
	"io"

	"voxagent/internal/domain"
)

// Pipeline pulls tokens from a model stream and yields sentence units.
// When the underlying stream ends, any buffered partial sentence is
// flushed as a final unit. When the stream fails mid-response, the
// partial unit is flushed first and the error is returned on the call
// after it, so the user hears everything that arrived.
type Pipeline struct {
	ts      domain.TokenStream
	asm     *Assembler
	pending []string
	sticky  error // returned once pending units are drained
	done    bool
}

// NewPipeline wraps ts. A nil assembler gets default settings.
func NewPipeline(ts domain.TokenStream, asm *Assembler) *Pipeline {
	if asm == nil {
		asm = NewAssembler(0)
	}
	return &Pipeline{ts: ts, asm: asm}
}

// Next returns the next sentence unit. It returns io.EOF after the
// final unit of a completed stream, or the stream's error after the
// flushed partial unit of a failed one.
func (p *Pipeline) Next(ctx context.Context) (string, error) {
	for {
		if len(p.pending) > 0 {
			unit := p.pending[0]
			p.pending = p.pending[1:]
			return unit, nil
		}
		if p.sticky != nil {
			return "", p.sticky
		}
		if p.done {
			return "", io.EOF
		}

		token, err := p.ts.Next(ctx)
		if err != nil {
			if err == io.EOF {
				p.done = true
			} else {
				p.sticky = err
			}
			if rest := p.asm.Flush(); rest != "" {
				p.pending = append(p.pending, rest)
			}
			continue
		}
		p.pending = append(p.pending, p.asm.Push(token)...)
	}
}

// Response returns the stream's final response once exhausted.
func (p *Pipeline) Response() *domain.ChatResponse { return p.ts.Response() }

// Close releases the underlying stream.
func (p *Pipeline) Close() error { return p.ts.Close() }
