package main

import (
	"encoding/json"
	"mime"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hrygo/backoffice/plugin/httpclient"
)

var uploadContentType string

func init() {
	uploadCmd.Flags().StringVar(&uploadContentType, "content-type", "", "content type, guessed from the extension by default")
	rootCmd.AddCommand(uploadCmd)
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a file and print its resource id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "failed to open %s", path)
		}
		defer f.Close()

		contentType := uploadContentType
		if contentType == "" {
			contentType = mime.TypeByExtension(filepath.Ext(path))
		}

		p, err := loadProfile()
		if err != nil {
			return err
		}
		s, err := newStore(p)
		if err != nil {
			return err
		}
		defer s.Close()

		uploaded, err := s.UploadFile(cmd.Context(), &httpclient.FileInput{
			Filename:    filepath.Base(path),
			ContentType: contentType,
			Content:     f,
		})
		if err != nil {
			return err
		}
		raw, err := json.Marshal(uploaded)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), raw)
	},
}
