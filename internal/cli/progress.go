package cli

import (
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	aghpb "github.com/JohnPlummer/jp-go-aghpb"
)

const spinnerInterval = 100 * time.Millisecond

// startSpinner shows an indeterminate spinner on w until the returned stop
// function is called.
func startSpinner(w io.Writer, description string) (stop func()) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(spinnerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			_ = bar.Finish()
		})
	}
}

// fetch queues action on the client and waits for its callback while the
// spinner runs.
func fetch[T any](a *app, cmd *cobra.Command, description string, action *aghpb.Action[T]) (T, error) {
	if !a.noProgress && !a.jsonOutput {
		stop := startSpinner(cmd.ErrOrStderr(), description)
		defer stop()
	}

	var (
		result T
		err    error
	)
	action.Queue(cmd.Context(),
		func(r T) { result = r },
		func(e error) { err = e },
	)
	return result, err
}
