package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/backoffice/internal/apierror"
	"github.com/hrygo/backoffice/internal/observability"
	"github.com/hrygo/backoffice/internal/profile"
	"github.com/hrygo/backoffice/plugin/httpclient"
	"github.com/hrygo/backoffice/store"
	"github.com/hrygo/backoffice/store/cache"
)

var (
	rootCmd = &cobra.Command{
		Use:           "backoffice",
		Short:         `Command line client for the back-office API, with a local mock backend for development.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return errors.Wrap(err, "failed to load .env")
			}
			if file := viper.GetString("config"); file != "" {
				viper.SetConfigFile(file)
				if err := viper.ReadInConfig(); err != nil {
					return errors.Wrapf(err, "failed to read config %s", file)
				}
			}
			setupLogger()
			return nil
		},
	}

	// metrics is shared by every client built during one invocation.
	metrics = observability.NewMetrics()
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("mode", "", `mode of client, can be "prod" or "dev" or "demo"`)
	flags.String("api-url", "", "base URL of the back-office API")
	flags.String("token", "", "bearer token sent with every request")
	flags.Duration("timeout", 0, "timeout of a single API exchange")
	flags.String("config", "", "optional config file (yaml, json or toml)")
	flags.Bool("verbose", false, "log every API exchange")
	flags.Bool("stats", false, "print request and cache counters when the command ends")

	for _, key := range []string{"mode", "api-url", "token", "timeout", "config", "verbose", "stats"} {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("backoffice")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindEnv("token", "BACKOFFICE_API_TOKEN"); err != nil {
		panic(err)
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, _ []string) {
		if viper.GetBool("stats") {
			printStats(cmd.ErrOrStderr(), metrics.Snapshot())
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		os.Exit(1)
	}
}

func setupLogger() {
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadProfile reads BACKOFFICE_* variables, then applies flags and config file values on top.
func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{}
	instanceProfile.FromEnv()

	if v := viper.GetString("mode"); v != "" {
		instanceProfile.Mode = v
	}
	if v := viper.GetString("api-url"); v != "" {
		instanceProfile.APIURL = v
	}
	if v := viper.GetString("token"); v != "" {
		instanceProfile.APIToken = v
	}
	if v := viper.GetDuration("timeout"); v > 0 {
		instanceProfile.Timeout = v
	}
	if v := viper.GetDuration("search-debounce"); v > 0 {
		instanceProfile.SearchDebounce = v
	}
	instanceProfile.Version = version

	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	return instanceProfile, nil
}

// newStore builds the HTTP client, cache and store for one invocation.
func newStore(p *profile.Profile) (*store.Store, error) {
	client, err := httpclient.NewClient(&httpclient.Config{
		BaseURL:   p.APIURL,
		Timeout:   p.Timeout,
		UserAgent: "backoffice/" + p.Version,
	}, httpclient.StaticToken(p.APIToken),
		httpclient.WithLogger(slog.Default()),
		httpclient.WithMetrics(metrics),
		httpclient.WithUnauthorizedHandler(func(_ context.Context, err *apierror.Error) {
			slog.Warn("credential rejected, set --token or BACKOFFICE_API_TOKEN", slog.String("message", err.Message))
		}),
	)
	if err != nil {
		return nil, err
	}

	c := cache.New(cache.Config{
		DefaultTTL:      p.CacheTTL,
		CleanupInterval: p.CacheCleanupInterval,
		MaxItems:        p.CacheMaxItems,
		Metrics:         metrics,
	})
	return store.New(client, c, slog.Default()), nil
}

// openResource resolves entity against a fresh store. The caller closes the store.
func openResource(entity string) (*store.Store, store.Resource, error) {
	p, err := loadProfile()
	if err != nil {
		return nil, nil, err
	}
	s, err := newStore(p)
	if err != nil {
		return nil, nil, err
	}
	r, err := s.Resource(entity)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, r, nil
}

func writeJSON(w io.Writer, raw json.RawMessage) error {
	if raw == nil {
		raw = json.RawMessage("null")
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return errors.Wrap(err, "failed to format response")
	}
	_, err := fmt.Fprintln(w, out.String())
	return err
}

// describe renders API errors with their field errors so validation failures are actionable.
func describe(err error) string {
	apiErr, ok := apierror.As(err)
	if !ok {
		return err.Error()
	}
	msg := fmt.Sprintf("%s (%s)", apiErr.Message, apiErr.Code)
	for _, field := range slices.Sorted(maps.Keys(apiErr.Fields)) {
		msg += fmt.Sprintf("\n  %s: %s", field, apiErr.Fields[field])
	}
	return msg
}

func printStats(w io.Writer, snap *observability.MetricsSnapshot) {
	fmt.Fprintf(w, "requests: %d (failed %d)\n", snap.RequestTotal, snap.RequestFailed)
	fmt.Fprintf(w, "cache: %d hits, %d misses, %d shared, %d invalidated\n",
		snap.CacheHits, snap.CacheMisses, snap.CacheShared, snap.CacheInvalidations)
}
