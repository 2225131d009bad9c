package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/hrygo/backoffice/server/mockapi"
)

var (
	mockAdminPassword string
	mockRateLimit     float64
	mockRateBurst     int

	tokenSubject string
	tokenTTL     time.Duration
)

func init() {
	flags := mockCmd.Flags()
	flags.String("mock-addr", "", "address of the mock backend")
	flags.Int("mock-port", 0, "port of the mock backend")
	flags.String("mock-secret", "", "HS256 secret for bearer tokens, empty disables authentication")
	flags.String("mock-delete-code", "", "code required to delete users")
	flags.StringVar(&mockAdminPassword, "admin-password", "", `seed an "admin" user with this password`)
	flags.Float64Var(&mockRateLimit, "rate-limit", 0, "requests per second per subject, 0 disables limiting")
	flags.IntVar(&mockRateBurst, "rate-burst", 20, "burst allowed above the rate limit")
	for _, key := range []string{"mock-addr", "mock-port", "mock-secret", "mock-delete-code"} {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	// Shares the secret with mock.
	tokenCmd.Flags().AddFlag(flags.Lookup("mock-secret"))

	rootCmd.AddCommand(mockCmd, tokenCmd)
}

// loadMockProfile is loadProfile plus the mock backend flags.
func loadMockProfile() (*mockProfile, error) {
	p, err := loadProfile()
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("mock-addr"); v != "" {
		p.MockAddr = v
	}
	if v := viper.GetInt("mock-port"); v > 0 {
		p.MockPort = v
	}
	if v := viper.GetString("mock-secret"); v != "" {
		p.MockSecret = v
	}
	if v := viper.GetString("mock-delete-code"); v != "" {
		p.MockDeleteCode = v
	}
	return &mockProfile{
		addr:       net.JoinHostPort(p.MockAddr, strconv.Itoa(p.MockPort)),
		secret:     p.MockSecret,
		deleteCode: p.MockDeleteCode,
	}, nil
}

type mockProfile struct {
	addr       string
	secret     string
	deleteCode string
}

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Serve the in-memory mock backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadMockProfile()
		if err != nil {
			return err
		}
		if p.deleteCode == "" {
			slog.Warn("no delete code configured, user deletion will always fail")
		}

		s := mockapi.New(mockapi.Config{
			Secret:        p.secret,
			DeleteCode:    p.deleteCode,
			AdminPassword: mockAdminPassword,
			RateLimit:     rate.Limit(mockRateLimit),
			RateBurst:     mockRateBurst,
			Logger:        slog.Default(),
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errc := make(chan error, 1)
		go func() {
			errc <- s.Start(p.addr)
		}()
		fmt.Fprintf(cmd.OutOrStdout(), "mock api listening on http://%s%s\n", p.addr, mockapi.BasePath)

		select {
		case err := <-errc:
			return errors.Wrap(err, "mock api stopped")
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token accepted by the mock backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadMockProfile()
		if err != nil {
			return err
		}
		if p.secret == "" {
			return errors.New("a secret is required, set --mock-secret or BACKOFFICE_MOCK_SECRET")
		}
		token, err := mockapi.IssueToken(p.secret, tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
