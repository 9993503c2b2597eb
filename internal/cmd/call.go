package cmd

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/upcall/upcall-cli/internal/etagcache"
	"github.com/upcall/upcall-cli/internal/filter"
	"github.com/upcall/upcall-cli/internal/outfmt"
	"github.com/upcall/upcall-cli/internal/request"
)

func newCallCmd() *cobra.Command {
	var method string
	var paramPairs []string
	var headerPairs []string
	var bodyArg string
	var mediaFile string
	var mediaMime string
	var noCache bool

	cmd := &cobra.Command{
		Use:     "call <endpoint>",
		Aliases: []string{"c"},
		Short:   "Call a configured endpoint",
		Long: `Call a named endpoint from the active profile. Parameters given with -p
fill the endpoint's URL template; leftovers become query parameters. The
endpoint name is matched fuzzily against the profile's catalog.`,
		Example: `  # GET with a path parameter
  upcall call items.get -p id=42

  # POST with a JSON body
  upcall call items.create -d '{"name":"Widget"}'

  # Body from a file, extra query params
  upcall call items.create -d @item.json -p notify=true

  # Attach media: multipart when a body is present, plain upload otherwise
  upcall call items.create -d '{"name":"n"}' --file photo.png --mime image/png

  # Filter the response
  upcall call items.list --jq '.items[].name'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParamPairs(paramPairs)
			if err != nil {
				return err
			}
			headers, err := parseHeaderPairs(headerPairs)
			if err != nil {
				return err
			}

			if bodyArg != "" {
				body, err := readBodyArg(cmd.InOrStdin(), bodyArg)
				if err != nil {
					return err
				}
				params["requestBody"] = body
			}

			if mediaFile != "" {
				f, err := os.Open(mediaFile)
				if err != nil {
					return fmt.Errorf("failed to open media file: %w", err)
				}
				defer func() { _ = f.Close() }()
				params["media"] = request.Media{Body: f, MimeType: mediaMime}
			}

			profile, err := loadProfile()
			if err != nil {
				return err
			}

			var opts request.Options
			if method != "" {
				opts.Method = strings.ToUpper(method)
			}

			var cache *etagcache.Cache
			if !noCache {
				cache = etagcache.FromEnv()
				defer func() { _ = cache.Close() }()
			}

			if len(headers) > 0 {
				params["headers"] = headers
			}

			d, err := buildDescriptor(profile, args[0], params, opts)
			if err != nil {
				return err
			}
			return runCall(cmd.Context(), cmd.OutOrStdout(), d, cache)
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", "", "override the endpoint's HTTP method")
	cmd.Flags().StringArrayVarP(&paramPairs, "param", "p", nil, "request parameter (key=value, repeatable)")
	cmd.Flags().StringArrayVarP(&headerPairs, "header", "H", nil, "extra header ('Key: Value', repeatable)")
	cmd.Flags().StringVarP(&bodyArg, "body", "d", "", "JSON request body (inline, @file, or - for stdin)")
	cmd.Flags().StringVar(&mediaFile, "file", "", "media file to upload")
	cmd.Flags().StringVar(&mediaMime, "mime", "", "MIME type of the media file")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the conditional-GET cache")

	return cmd
}

// runCall resolves and materializes the descriptor, wires the conditional
// GET cache, dispatches, and renders the response.
func runCall(ctx context.Context, out io.Writer, d *request.Descriptor, cache *etagcache.Cache) error {
	resolved, err := request.Resolve(d)
	if err != nil {
		return err
	}
	opts, err := request.Materialize(resolved, d)
	if err != nil {
		return err
	}

	var cacheKey string
	var cached *etagcache.Entry
	if cache != nil && opts.Method == http.MethodGet {
		cacheKey = etagcache.Key(opts.Method, opts.URL+"?"+request.EncodeQuery(opts.Query))
		if entry, ok := cache.Get(ctx, cacheKey); ok {
			cached = entry
			if _, exists := opts.Headers["If-None-Match"]; !exists {
				opts.Headers["If-None-Match"] = entry.ETag
			}
		}
	}

	resp, err := request.Dispatch(ctx, resolved.Credential, opts, d.Executor)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var body []byte
	if resp.StatusCode == http.StatusNotModified && cached != nil {
		body = cached.Body
	} else {
		body, err = readResponseBody(resp)
		if err != nil {
			return err
		}
		if cacheKey != "" {
			cache.Put(ctx, cacheKey, &etagcache.Entry{
				ETag:        resp.Header.Get("Etag"),
				ContentType: resp.Header.Get("Content-Type"),
				Body:        body,
			})
		}
	}

	return renderResponse(ctx, out, body)
}

// readResponseBody reads the body, transparently decoding gzip. The request
// pipeline asks for gzip explicitly, which disables the transport's own
// decompression.
func readResponseBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode gzip response: %w", err)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}

func renderResponse(ctx context.Context, out io.Writer, body []byte) error {
	if outfmt.FromContext(ctx) == outfmt.Raw {
		_, err := out.Write(body)
		return err
	}
	if len(body) == 0 {
		return nil
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		// Not JSON; fall back to raw passthrough.
		_, werr := out.Write(body)
		return werr
	}
	data, err := filter.Apply(data, flags.JQ)
	if err != nil {
		return err
	}
	return outfmt.Write(ctx, out, data)
}

// readBodyArg loads the request body: inline JSON, @file, or - for stdin.
func readBodyArg(stdin io.Reader, arg string) (any, error) {
	var data []byte
	var err error
	switch {
	case arg == "-":
		data, err = io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read body from stdin: %w", err)
		}
	case strings.HasPrefix(arg, "@"):
		data, err = os.ReadFile(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
	default:
		data = []byte(arg)
	}

	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("request body is not valid JSON: %w", err)
	}
	return body, nil
}
