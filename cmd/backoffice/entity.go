package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hrygo/backoffice/store/query"
)

var (
	listParams []string
	listSearch string

	writeData string

	deleteCode string
)

func init() {
	listCmd.Flags().StringArrayVarP(&listParams, "param", "p", nil, "filter as key=value, repeatable")
	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "free-text search")

	for _, cmd := range []*cobra.Command{createCmd, updateCmd} {
		cmd.Flags().StringVarP(&writeData, "data", "d", "", `JSON object, "@file" to read a file or "-" for stdin`)
		cmd.MarkFlagRequired("data")
	}

	deleteCmd.Flags().StringVar(&deleteCode, "code", "", "delete authorization code, required for users")

	rootCmd.AddCommand(listCmd, getCmd, createCmd, updateCmd, deleteCmd)
}

var listCmd = &cobra.Command{
	Use:   "list <entity>",
	Short: "List records of an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(listParams)
		if err != nil {
			return err
		}
		if listSearch != "" {
			params["search"] = listSearch
		}

		s, r, err := openResource(args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		raw, err := r.ListJSON(cmd.Context(), params)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), raw)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <entity> <id>",
	Short: "Show one record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, r, err := openResource(args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		raw, err := r.GetJSON(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), raw)
	},
}

var createCmd = &cobra.Command{
	Use:   "create <entity>",
	Short: "Create a record from a JSON object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := readPayload(writeData, cmd.InOrStdin())
		if err != nil {
			return err
		}

		s, r, err := openResource(args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		raw, err := r.CreateJSON(cmd.Context(), payload)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), raw)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <entity> <id>",
	Short: "Apply a partial JSON update to a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := readPayload(writeData, cmd.InOrStdin())
		if err != nil {
			return err
		}

		s, r, err := openResource(args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		raw, err := r.UpdateJSON(cmd.Context(), args[1], payload)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), raw)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <entity> <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a record",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, r, err := openResource(args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		if err := r.Delete(cmd.Context(), args[1], deleteCode); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s\n", r.Entity(), args[1])
		return nil
	},
}

// parseParams turns key=value pairs into list filters. Later pairs win.
func parseParams(pairs []string) (query.Params, error) {
	params := query.Params{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Errorf("invalid param %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

// readPayload resolves the --data argument into a JSON document.
func readPayload(data string, stdin io.Reader) (json.RawMessage, error) {
	var raw []byte
	switch {
	case data == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read stdin")
		}
		raw = b
	case strings.HasPrefix(data, "@"):
		b, err := os.ReadFile(data[1:])
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", data[1:])
		}
		raw = b
	default:
		raw = []byte(data)
	}
	if !json.Valid(raw) {
		return nil, errors.New("data is not valid JSON")
	}
	return raw, nil
}
