package appcore

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

type teardownHook struct {
	name string
	fn   func() error
}

// teardown collects the resources an App owns and releases them in reverse
// acquisition order, like stacked defers. Every hook runs even when an
// earlier one fails; failures are logged and returned joined.
type teardown struct {
	hooks []teardownHook
}

func (td *teardown) add(name string, fn func() error) {
	if fn == nil {
		log.Warn().Str("resource", name).Msg("ignoring nil teardown hook")
		return
	}
	td.hooks = append(td.hooks, teardownHook{name: name, fn: fn})
}

func (td *teardown) run() error {
	var errs []error
	for i := len(td.hooks) - 1; i >= 0; i-- {
		hook := td.hooks[i]

		if err := hook.fn(); err != nil {
			log.Warn().Str("resource", hook.name).Err(err).Msg("close failed")
			errs = append(errs, fmt.Errorf("%s: %w", hook.name, err))
			continue
		}
		log.Debug().Str("resource", hook.name).Msg("closed")
	}
	return errors.Join(errs...)
}
