package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/upcall/upcall-cli/internal/outfmt"
	"github.com/upcall/upcall-cli/internal/request"
)

// DefaultConcurrency is the default number of concurrent workers.
const DefaultConcurrency = 5

// batchSpec is one line of a batch file.
type batchSpec struct {
	Endpoint string         `json:"endpoint"`
	Method   string         `json:"method,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	Body     any            `json:"body,omitempty"`
}

// BatchResult is the outcome of a single batch request.
type BatchResult struct {
	Index    int    `json:"index"`
	Endpoint string `json:"endpoint"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Data     any    `json:"data,omitempty"`
}

func newBatchCmd() *cobra.Command {
	var concurrency int64
	var progress bool
	var failFast bool

	cmd := &cobra.Command{
		Use:     "batch <file>",
		Aliases: []string{"b"},
		Short:   "Run many endpoint calls from a JSONL file",
		Long: `Execute one request per line of a JSONL file, with bounded concurrency.
Each line names an endpoint plus optional method, params, and body:

  {"endpoint":"items.get","params":{"id":"1"}}
  {"endpoint":"items.create","method":"POST","body":{"name":"Widget"}}

Results are emitted in input order once all requests finish. Use - to
read the batch from stdin.`,
		Example: `  # Run a batch with 10 workers
  upcall batch requests.jsonl --concurrency 10

  # Pipe a generated batch, keep only failures
  generate-batch | upcall batch - --jq '.[] | select(.success | not)'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := readBatchFile(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			if len(specs) == 0 {
				return fmt.Errorf("batch file contains no requests")
			}

			profile, err := loadProfile()
			if err != nil {
				return err
			}

			results := runBatch(cmd.Context(), specs, concurrency, progress, cmd.ErrOrStderr(), failFast,
				func(ctx context.Context, spec batchSpec) (any, error) {
					params := make(map[string]any, len(spec.Params)+1)
					for k, v := range spec.Params {
						params[k] = v
					}
					if spec.Body != nil {
						params["requestBody"] = spec.Body
					}

					var opts request.Options
					if spec.Method != "" {
						opts.Method = spec.Method
					}
					d, err := buildDescriptor(profile, spec.Endpoint, params, opts)
					if err != nil {
						return nil, err
					}

					resp, err := request.Do(ctx, d)
					if err != nil {
						return nil, err
					}
					defer func() { _ = resp.Body.Close() }()

					body, err := readResponseBody(resp)
					if err != nil {
						return nil, err
					}
					if len(body) == 0 {
						return nil, nil
					}
					var data any
					if err := json.Unmarshal(body, &data); err != nil {
						return string(body), nil
					}
					return data, nil
				})

			success, failure := countResults(results)
			if err := outfmt.Write(cmd.Context(), cmd.OutOrStdout(), results); err != nil {
				return err
			}
			if failure > 0 {
				return fmt.Errorf("%d of %d requests failed", failure, success+failure)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&concurrency, "concurrency", DefaultConcurrency, "maximum concurrent requests")
	cmd.Flags().BoolVar(&progress, "progress", false, "print progress to stderr")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "cancel remaining requests after the first failure")

	return cmd
}

func readBatchFile(stdin io.Reader, path string) ([]batchSpec, error) {
	var reader io.Reader
	if path == "-" {
		reader = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open batch file: %w", err)
		}
		defer func() { _ = f.Close() }()
		reader = f
	}

	var specs []batchSpec
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var spec batchSpec
		if err := json.Unmarshal(raw, &spec); err != nil {
			return nil, fmt.Errorf("invalid batch entry on line %d: %w", line, err)
		}
		if spec.Endpoint == "" {
			return nil, fmt.Errorf("batch entry on line %d has no endpoint", line)
		}
		specs = append(specs, spec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	return specs, nil
}

// runBatch executes specs concurrently with bounded parallelism. Results come
// back in input order regardless of completion order.
func runBatch(
	ctx context.Context,
	specs []batchSpec,
	concurrency int64,
	progress bool,
	errOut io.Writer,
	failFast bool,
	operation func(ctx context.Context, spec batchSpec) (any, error),
) []BatchResult {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if errOut == nil {
		errOut = io.Discard
	}

	sem := semaphore.NewWeighted(concurrency)
	results := make([]BatchResult, len(specs))
	total := len(specs)
	var done int64
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)

	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = BatchResult{Index: i, Endpoint: spec.Endpoint, Error: err.Error()}
				return nil
			}
			defer sem.Release(1)

			if ctx.Err() != nil {
				results[i] = BatchResult{Index: i, Endpoint: spec.Endpoint, Error: ctx.Err().Error()}
				return nil
			}

			data, err := operation(ctx, spec)
			if err != nil {
				results[i] = BatchResult{Index: i, Endpoint: spec.Endpoint, Error: err.Error()}
			} else {
				results[i] = BatchResult{Index: i, Endpoint: spec.Endpoint, Success: true, Data: data}
			}

			if progress && total > 0 {
				current := atomic.AddInt64(&done, 1)
				mu.Lock()
				_, _ = fmt.Fprintf(errOut, "\rProcessed %d/%d", current, total)
				mu.Unlock()
			}

			if err != nil && failFast {
				return err
			}
			return nil
		})
	}

	_ = g.Wait()

	if progress && total > 0 {
		_, _ = fmt.Fprintf(errOut, "\rProcessed %d/%d\n", atomic.LoadInt64(&done), total)
	}

	return results
}

// countResults returns success and failure counts.
func countResults(results []BatchResult) (success, failure int) {
	for _, r := range results {
		if r.Success {
			success++
		} else {
			failure++
		}
	}
	return
}
