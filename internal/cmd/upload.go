package cmd

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/upcall/upcall-cli/internal/request"
)

func newUploadCmd() *cobra.Command {
	var paramPairs []string
	var metaArg string
	var mediaMime string
	var noProgress bool

	cmd := &cobra.Command{
		Use:     "upload <endpoint> <file>",
		Aliases: []string{"up"},
		Short:   "Upload a file to an endpoint",
		Long: `Upload a file through an endpoint's media URL template. Without --meta the
file is sent as a plain media body; with --meta the upload becomes a
multipart/related request carrying the JSON metadata alongside the file.`,
		Example: `  # Plain media upload
  upcall upload files.insert report.pdf

  # Multipart upload with metadata
  upcall upload files.insert report.pdf --meta '{"name":"Q3 report"}'

  # Explicit MIME type
  upcall upload files.insert data.bin --mime application/octet-stream`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParamPairs(paramPairs)
			if err != nil {
				return err
			}

			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[1], err)
			}
			defer func() { _ = f.Close() }()

			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("failed to stat %s: %w", args[1], err)
			}

			params["media"] = request.Media{
				Body:     f,
				MimeType: mimeTypeFor(args[1], mediaMime),
			}

			if metaArg != "" {
				meta, err := readBodyArg(cmd.InOrStdin(), metaArg)
				if err != nil {
					return err
				}
				params["requestBody"] = meta
			}

			profile, err := loadProfile()
			if err != nil {
				return err
			}

			var opts request.Options
			if !noProgress {
				opts.OnUploadProgress = progressMeter(cmd.ErrOrStderr(), info.Size())
			}

			d, err := buildDescriptor(profile, args[0], params, opts)
			if err != nil {
				return err
			}
			// Media needs an upload URL; endpoints without a dedicated one
			// upload in place.
			if d.MediaURLTemplate == "" {
				d.MediaURLTemplate = d.URLTemplate
			}
			// Large uploads outlive any fixed deadline unless the caller
			// asked for one explicitly.
			if !cmd.Flags().Changed("timeout") {
				d.Options.Timeout = -1
			}

			resp, err := request.Do(cmd.Context(), d)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()

			if !noProgress {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr())
			}

			body, err := readResponseBody(resp)
			if err != nil {
				return err
			}
			return renderResponse(cmd.Context(), cmd.OutOrStdout(), body)
		},
	}

	cmd.Flags().StringArrayVarP(&paramPairs, "param", "p", nil, "request parameter (key=value, repeatable)")
	cmd.Flags().StringVar(&metaArg, "meta", "", "JSON metadata body (inline, @file, or - for stdin)")
	cmd.Flags().StringVar(&mediaMime, "mime", "", "MIME type (default: derived from the file extension)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "suppress the upload progress meter")

	return cmd
}

// mimeTypeFor picks an explicit MIME type over one derived from the file
// extension. An empty result lets the request layer apply its default.
func mimeTypeFor(path, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		// Strip charset suffixes added for text types.
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return ""
}

// progressMeter renders cumulative upload progress on a single line.
func progressMeter(errOut io.Writer, total int64) func(int64) {
	return func(sent int64) {
		if total > 0 {
			_, _ = fmt.Fprintf(errOut, "\rUploaded %d/%d bytes (%d%%)", sent, total, sent*100/total)
			return
		}
		_, _ = fmt.Fprintf(errOut, "\rUploaded %d bytes", sent)
	}
}
