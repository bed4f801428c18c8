package behavioralsignals

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"google.golang.org/grpc"

	"behavioralsignals-sdk-go/internal/observability/logging"
	pb "behavioralsignals-sdk-go/proto"
)

const maxPageSize = 1000

// API is one analysis product (behavioral or deepfake detection). Both
// share the same batch and streaming surface under different routes.
type API struct {
	client *Client
	name   string
	prefix string
	open   func(ctx context.Context, opts ...grpc.CallOption) (pb.BehavioralStreamingApi_StreamAudioClient, error)
}

// Name is "behavioral" or "deepfakes".
func (a *API) Name() string {
	return a.name
}

func (a *API) processesPath(suffix string) string {
	return a.prefix + "clients/" + url.PathEscape(a.client.session.ClientID) + "/processes" + suffix
}

// SubmitOptions are the optional fields of an upload.
type SubmitOptions struct {
	// Name labels the process. SubmitFile defaults it to the file's base name.
	Name string
	// IncludeEmbeddings asks the service to return speaker embeddings.
	IncludeEmbeddings bool
	// Metadata is caller JSON stored with the process and returned verbatim.
	Metadata string
}

// Submit uploads audio read from r and returns the created process.
// opts.Name is required since a reader has no file name.
func (a *API) Submit(ctx context.Context, r io.Reader, opts SubmitOptions) (*Process, error) {
	if r == nil {
		return nil, &ValidationError{Field: "audio", Reason: "reader is nil"}
	}
	if opts.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required when submitting from a reader"}
	}
	meta, err := a.client.validator.CompactMetadata(opts.Metadata)
	if err != nil {
		return nil, &ValidationError{Field: "metadata", Err: err}
	}
	opts.Metadata = meta
	return a.submit(ctx, r, opts)
}

// SubmitFile uploads the audio file at path.
func (a *API) SubmitFile(ctx context.Context, path string, opts SubmitOptions) (*Process, error) {
	meta, err := a.client.validator.CompactMetadata(opts.Metadata)
	if err != nil {
		return nil, &ValidationError{Field: "metadata", Err: err}
	}
	opts.Metadata = meta
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, &ValidationError{Field: "audio file", Reason: path + " does not exist"}
	case err != nil:
		return nil, &ValidationError{Field: "audio file", Err: err}
	case info.IsDir():
		return nil, &ValidationError{Field: "audio file", Reason: path + " is a directory"}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &ValidationError{Field: "audio file", Err: err}
	}
	defer f.Close()

	if opts.Name == "" {
		opts.Name = filepath.Base(path)
	}
	return a.submit(ctx, f, opts)
}

func (a *API) submit(ctx context.Context, r io.Reader, opts SubmitOptions) (*Process, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", opts.Name)
	if err != nil {
		return nil, &ValidationError{Field: "audio", Err: err}
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, &ValidationError{Field: "audio", Reason: "read failed", Err: err}
	}
	fields := [][2]string{{"name", opts.Name}}
	if opts.IncludeEmbeddings {
		fields = append(fields, [2]string{"embeddings", "true"})
	}
	if opts.Metadata != "" {
		fields = append(fields, [2]string{"meta", opts.Metadata})
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, &ValidationError{Field: kv[0], Err: err}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, &ValidationError{Field: "audio", Err: err}
	}

	resp, err := a.client.http.do(ctx, apiRequest{
		op:          a.name + ".submit",
		method:      http.MethodPost,
		path:        a.processesPath("/audio"),
		body:        &body,
		contentType: mw.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}

	var p Process
	if err := decodeJSON("process", resp.body, &p); err != nil {
		return nil, err
	}
	plog := logging.WithProcess(a.client.logger, a.name, p.ID)
	plog.Info().
		Str("name", p.Name).
		Str("status", p.Status.String()).
		Msg("Audio submitted")
	return &p, nil
}

// GetProcess returns the current snapshot of process pid.
func (a *API) GetProcess(ctx context.Context, pid int64) (*Process, error) {
	resp, err := a.client.http.do(ctx, apiRequest{
		op:     a.name + ".get_process",
		method: http.MethodGet,
		path:   a.processesPath("/" + strconv.FormatInt(pid, 10)),
	})
	if err != nil {
		return nil, err
	}
	var p Process
	if err := decodeJSON("process", resp.body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListOptions selects a page of processes. Dates are passed to the
// service verbatim.
type ListOptions struct {
	Page int
	// PageSize is 1..1000; zero uses the service default.
	PageSize  int
	Sort      string
	StartDate string
	EndDate   string
}

func (o ListOptions) query() (url.Values, error) {
	if o.Page < 0 {
		return nil, &ValidationError{Field: "page", Reason: "must not be negative"}
	}
	if o.PageSize < 0 || o.PageSize > maxPageSize {
		return nil, &ValidationError{Field: "page size", Reason: fmt.Sprintf("must be between 1 and %d", maxPageSize)}
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(o.Page))
	if o.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(o.PageSize))
	}
	if o.Sort != "" {
		q.Set("sort", o.Sort)
	}
	if o.StartDate != "" {
		q.Set("startDate", o.StartDate)
	}
	if o.EndDate != "" {
		q.Set("endDate", o.EndDate)
	}
	return q, nil
}

// ListProcesses returns one page of the client's processes.
func (a *API) ListProcesses(ctx context.Context, opts ListOptions) (*ProcessList, error) {
	q, err := opts.query()
	if err != nil {
		return nil, err
	}
	resp, err := a.client.http.do(ctx, apiRequest{
		op:     a.name + ".list_processes",
		method: http.MethodGet,
		path:   a.processesPath(""),
		query:  q,
	})
	if err != nil {
		return nil, err
	}

	var processes []Process
	if err := decodeJSON("process list", resp.body, &processes); err != nil {
		return nil, err
	}
	if processes == nil {
		processes = []Process{}
	}
	list := &ProcessList{Processes: processes, TotalCount: len(processes)}
	if v := resp.header.Get(headerTotalCount); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			list.TotalCount = n
		}
	}
	return list, nil
}

// FetchResult returns the results of a completed process. A process in
// any other status fails locally with InvalidStateError.
func (a *API) FetchResult(ctx context.Context, p *Process) (*ResultResponse, error) {
	if p == nil {
		return nil, &ValidationError{Field: "process", Reason: "is nil"}
	}
	if !p.IsCompleted() {
		return nil, &InvalidStateError{ProcessID: p.ID, Status: p.Status, Want: StatusCompleted}
	}
	resp, err := a.client.http.do(ctx, apiRequest{
		op:     a.name + ".fetch_result",
		method: http.MethodGet,
		path:   a.processesPath("/" + strconv.FormatInt(p.ID, 10) + "/results"),
	})
	if err != nil {
		return nil, err
	}
	var rr ResultResponse
	if err := decodeJSON("result response", resp.body, &rr); err != nil {
		return nil, err
	}
	return &rr, nil
}

// FetchResultByID looks up pid and fetches its results if completed.
func (a *API) FetchResultByID(ctx context.Context, pid int64) (*ResultResponse, error) {
	p, err := a.GetProcess(ctx, pid)
	if err != nil {
		return nil, err
	}
	return a.FetchResult(ctx, p)
}
