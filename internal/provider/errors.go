package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Fault is a classified provider failure. The orchestrator records faults
// per provider and keeps going; a fault from one source never aborts its
// siblings.
type Fault struct {
	Provider string
	Kind     model.FaultKind
	Err      error
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return f.Provider + ": " + string(f.Kind)
	}
	return f.Provider + ": " + string(f.Kind) + ": " + f.Err.Error()
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// NewFault wraps err as a classified fault for the named provider.
func NewFault(provider string, kind model.FaultKind, err error) *Fault {
	return &Fault{Provider: provider, Kind: kind, Err: err}
}

// FaultFromStatus classifies an HTTP response status into a fault, or nil
// for success statuses. 404 is only a fault when the endpoint treats missing
// data as an error; adapters that get a clean "no results" body return an
// empty payload instead.
func FaultFromStatus(provider string, status int) *Fault {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewFault(provider, model.FaultAuth, eris.Errorf("http %d", status))
	case status == http.StatusTooManyRequests:
		return NewFault(provider, model.FaultRateLimit, eris.Errorf("http %d", status))
	case status == http.StatusNotFound:
		return NewFault(provider, model.FaultNotFound, eris.Errorf("http %d", status))
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewFault(provider, model.FaultTimeout, eris.Errorf("http %d", status))
	case status >= 400:
		return NewFault(provider, model.FaultOther, eris.Errorf("http %d", status))
	}
	return nil
}

// Classify maps any fetch error onto a fault. Context deadline and
// cancellation become timeout faults; an existing Fault passes through
// unchanged; anything else is FaultOther.
func Classify(provider string, err error) *Fault {
	if err == nil {
		return nil
	}

	var f *Fault
	if errors.As(err, &f) {
		return f
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewFault(provider, model.FaultTimeout, err)
	}

	return NewFault(provider, model.FaultOther, err)
}

// AsFailure converts a fault to the recorded per-run failure entry.
func (f *Fault) AsFailure() model.SourceFailure {
	msg := string(f.Kind)
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return model.SourceFailure{
		Provider: f.Provider,
		Kind:     f.Kind,
		Message:  msg,
	}
}
