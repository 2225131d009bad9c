package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/backoffice/internal/debounce"
	"github.com/hrygo/backoffice/store"
	"github.com/hrygo/backoffice/store/query"
)

func init() {
	searchCmd.Flags().Duration("search-debounce", 0, "quiet period before a typed term is searched")
	if err := viper.BindPFlag("search-debounce", searchCmd.Flags().Lookup("search-debounce")); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <entity>",
	Short: "Search a collection as you type, one term per line on stdin",
	Long: `Reads search terms line by line from stdin. A term is sent once input pauses,
and a newer term replaces a search still in flight.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, r, err := openResource(args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		p, err := loadProfile()
		if err != nil {
			return err
		}
		return runSearch(cmd.Context(), cmd.OutOrStdout(), r, cmd.InOrStdin(), p.SearchDebounce)
	},
}

// runSearch feeds every line of in through a debouncer into a list watch and prints each
// settled result. It returns once in is exhausted and the last search has been printed.
func runSearch(ctx context.Context, out io.Writer, r store.Resource, in io.Reader, delay time.Duration) error {
	w := r.WatchJSON(ctx)
	defer w.Close()

	var (
		mu       sync.Mutex
		printed  = sync.NewCond(&mu)
		last     time.Time
		writeErr error
	)
	w.OnChange(func(state store.State[json.RawMessage]) {
		mu.Lock()
		defer mu.Unlock()
		switch state.Status {
		case store.StatusSuccess:
			fmt.Fprintf(out, "# %s\n", state.Key)
			if err := writeJSON(out, state.Data); err != nil && writeErr == nil {
				writeErr = err
			}
		case store.StatusError:
			fmt.Fprintf(out, "# %s: %s\n", state.Key, describe(state.Err))
		}
		last = state.UpdatedAt
		printed.Broadcast()
	})

	d := debounce.New(delay, func(term string) {
		w.Request(r.ListDescriptor(query.Params{"search": term}))
	})
	defer d.Stop()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		d.Push(strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	// Returns after any emission racing with end of input has issued its request.
	d.Flush()

	final, err := w.Wait(ctx)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	if final.Status == store.StatusSuccess || final.Status == store.StatusError {
		for last.Before(final.UpdatedAt) {
			printed.Wait()
		}
	}
	return writeErr
}
