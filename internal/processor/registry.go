package processor

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Thiago4532/mdmath.nvim/internal/protocol"
)

// Response is what a continuation receives. Exactly one of Result and Err is
// set.
type Response struct {
	Result *protocol.Result
	Err    error
}

// Continuation is invoked on the event loop when a request resolves.
type Continuation func(Response)

// Registry maps request identifiers to pending continuations and guarantees
// each continuation runs at most once.
type Registry struct {
	pending map[string]Continuation
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		pending: make(map[string]Continuation),
		logger:  logger,
	}
}

// Register stores k under id. It fails if id is already pending.
func (r *Registry) Register(id string, k Continuation) error {
	if _, exists := r.pending[id]; exists {
		r.logger.Error("duplicate request identifier", zap.String("request_id", id))
		return fmt.Errorf("register %s: %w", id, ErrDuplicateID)
	}
	r.pending[id] = k
	return nil
}

// Resolve removes the continuation for f.ID and invokes it with the decoded
// frame. Frames without a pending request, including replies to control
// commands, are logged and dropped. Resolve reports whether a continuation
// ran.
func (r *Registry) Resolve(f protocol.Frame) bool {
	k, ok := r.pending[f.ID]
	if !ok {
		r.logger.Warn("dropping unmatched response",
			zap.String("request_id", f.ID),
			zap.String("kind", string(f.Kind)))
		return false
	}
	delete(r.pending, f.ID)

	var resp Response
	switch f.Kind {
	case protocol.KindData:
		res, err := protocol.ParseResult(f.Payload)
		if err != nil {
			resp.Err = fmt.Errorf("request %s: %w", f.ID, err)
		} else {
			resp.Result = res
		}
	default:
		resp.Err = &RenderError{ID: f.ID, Message: string(f.Payload)}
	}

	if k != nil {
		k(resp)
	}
	return true
}

// Remove forgets id without invoking its continuation.
func (r *Registry) Remove(id string) {
	delete(r.pending, id)
}

// Fail resolves every pending request with err.
func (r *Registry) Fail(err error) {
	pending := r.pending
	r.pending = make(map[string]Continuation)
	for _, k := range pending {
		if k != nil {
			k(Response{Err: err})
		}
	}
}

// Reset drops every pending request without invoking it.
func (r *Registry) Reset() {
	r.pending = make(map[string]Continuation)
}

// Len returns the number of pending requests.
func (r *Registry) Len() int {
	return len(r.pending)
}

// Pending reports whether id is waiting for a response.
func (r *Registry) Pending(id string) bool {
	_, ok := r.pending[id]
	return ok
}
