package explorer

import (
	"fmt"
	"io"
	"time"

	"github.com/PentesterFlow/uiprobe/internal/dom"
	"github.com/PentesterFlow/uiprobe/internal/logger"
	"github.com/PentesterFlow/uiprobe/internal/store"
)

// Option is a functional option for configuring the Explorer.
type Option func(*Explorer) error

// WithConfig replaces the whole configuration.
func WithConfig(config *Config) Option {
	return func(e *Explorer) error {
		if config == nil {
			return fmt.Errorf("nil config")
		}
		e.config = config.Clone()
		return nil
	}
}

// WithBaseURL sets the default page.
func WithBaseURL(url string) Option {
	return func(e *Explorer) error {
		e.config.BaseURL = url
		return nil
	}
}

// WithBackend selects the static or rendered backend.
func WithBackend(backend string) Option {
	return func(e *Explorer) error {
		e.config.Backend = backend
		return nil
	}
}

// WithReportsDir sets where reports are saved.
func WithReportsDir(dir string) Option {
	return func(e *Explorer) error {
		e.config.ReportsDir = dir
		return nil
	}
}

// WithStatistics enables or disables attached counts.
func WithStatistics(enabled bool) Option {
	return func(e *Explorer) error {
		e.config.Statistics = enabled
		return nil
	}
}

// WithGenericSelectors replaces the generic interactive selectors.
func WithGenericSelectors(selectors ...string) Option {
	return func(e *Explorer) error {
		e.config.Classify.GenericSelectors = append([]string(nil), selectors...)
		return nil
	}
}

// WithoutGenericSelectors disables the generic interactive pass.
func WithoutGenericSelectors() Option {
	return func(e *Explorer) error {
		e.config.Classify.DisableGeneric = true
		return nil
	}
}

// WithSource injects a DOM source. The explorer does not close it.
func WithSource(src dom.Source) Option {
	return func(e *Explorer) error {
		e.source = src
		e.ownsSource = false
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(e *Explorer) error {
		e.logger = log
		return nil
	}
}

// WithStore records saved reports in s. The explorer does not close it.
func WithStore(s store.Store) Option {
	return func(e *Explorer) error {
		e.store = s
		e.ownsStore = false
		return nil
	}
}

// WithClock sets the time source used for the run timestamp.
func WithClock(clock func() time.Time) Option {
	return func(e *Explorer) error {
		if clock == nil {
			return fmt.Errorf("nil clock")
		}
		e.clock = clock
		return nil
	}
}

// WithOutput sets the writer used by PrintSummary.
func WithOutput(w io.Writer) Option {
	return func(e *Explorer) error {
		e.out = w
		return nil
	}
}

// WithLogOutput sets where the explorer's own logger writes. It has no
// effect together with WithLogger.
func WithLogOutput(w io.Writer) Option {
	return func(e *Explorer) error {
		e.logOut = w
		return nil
	}
}
