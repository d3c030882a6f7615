package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ambiyansyah-risyal/tandem"
)

type requestOptions struct {
	data     string
	progress bool
	include  bool
	strict   bool
}

func newRequestCmd(root *rootOptions) *cobra.Command {
	opts := &requestOptions{}

	cmd := &cobra.Command{
		Use:   "request METHOD URL",
		Short: "Send a single request and print the response",
		Long: `Send a single request through the client and print the response body.

For GET the --data object is encoded into the query string; for every other
method it is sent as a JSON body.

Example:
  tandem request GET https://httpbin.org/get --data '{"q":"tandem"}'
  tandem request PUT /items/1 --base-url https://api.example.com --data '{"name":"x"}' -i`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, root, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.data, "data", "", "JSON payload")
	cmd.Flags().BoolVar(&opts.progress, "progress", false, "Use the progress transport and report transfer progress")
	cmd.Flags().BoolVarP(&opts.include, "include", "i", false, "Print the status line and response headers")
	cmd.Flags().BoolVar(&opts.strict, "fail", false, "Treat any status outside 2xx as an error")
	return cmd
}

func runRequest(cmd *cobra.Command, root *rootOptions, opts *requestOptions, method, url string) error {
	var extra []tandem.Option
	if opts.strict {
		extra = append(extra, tandem.WithStrictStatus())
	}
	client, err := root.newClient(cmd, extra...)
	if err != nil {
		return err
	}
	defer client.Close()

	cfg := tandem.RequestConfig{
		URL:          url,
		Method:       tandem.Method(strings.ToUpper(method)),
		ResponseType: tandem.ResponseTypeBytes,
	}
	if opts.data != "" {
		if !json.Valid([]byte(opts.data)) {
			return fmt.Errorf("--data is not valid JSON")
		}
		cfg.Data = json.RawMessage(opts.data)
	}
	if opts.progress {
		bar := newProgressPrinter(cmd.ErrOrStderr())
		cfg.OnUploadProgress = bar.reporter("upload")
		cfg.OnDownloadProgress = bar.reporter("download")
		defer bar.done()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := client.Request(ctx, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.include {
		printHead(out, resp)
	}
	_, err = out.Write(resp.Body)
	if err == nil && len(resp.Body) > 0 && resp.Body[len(resp.Body)-1] != '\n' {
		_, err = io.WriteString(out, "\n")
	}
	return err
}

func printHead(w io.Writer, resp *tandem.Response) {
	fmt.Fprintf(w, "%d %s\n", resp.Status, resp.StatusText)
	names := make([]string, 0, len(resp.Headers))
	for name := range resp.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s: %s\n", name, resp.Headers[name])
	}
	fmt.Fprintln(w)
}

// progressPrinter renders progress percentages in place on a terminal. On
// any other writer it stays silent.
type progressPrinter struct {
	w       io.Writer
	enabled bool
	printed bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, enabled: isTerminal(w)}
}

func (p *progressPrinter) reporter(label string) tandem.ProgressFunc {
	return func(percent float64) {
		if !p.enabled {
			return
		}
		p.printed = true
		fmt.Fprintf(p.w, "\r%-8s %5.1f%%", label, percent)
	}
}

func (p *progressPrinter) done() {
	if p.printed {
		fmt.Fprintln(p.w)
	}
}

// isTerminal reports whether w is a file attached to a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
