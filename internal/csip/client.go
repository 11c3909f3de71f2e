// Package csip talks to the RHEM model service: it builds run requests from
// scenario rows, posts them, downloads the returned artifacts and reads the
// annual averages out of the summary report.
package csip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"bytemomo/rhembatch/internal/domain"
	"bytemomo/rhembatch/internal/summary"

	log "github.com/sirupsen/logrus"
)

const op = "csip"

// DefaultURL is the public RHEM run endpoint.
const DefaultURL = "http://csip.engr.colostate.edu:8083/csip-rhem/m/rhem/runrhem/1.0"

// DefaultAuxResult names the auxiliary scalar copied into the table.
const DefaultAuxResult = "TDS"

// Config holds the service settings.
type Config struct {
	URL       string
	AuxResult string
}

// Client is a ScenarioExecutor backed by the remote model service.
type Client struct {
	cfg  Config
	http *http.Client
	sink domain.ArtifactSink
	log  *log.Entry
}

// NewClient creates a client. httpClient may be nil; the batch context bounds
// every call, so the client itself carries no timeout. sink may be nil, in
// which case artifacts are downloaded but not stored.
func NewClient(cfg Config, httpClient *http.Client, sink domain.ArtifactSink, logger *log.Entry) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.AuxResult == "" {
		cfg.AuxResult = DefaultAuxResult
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Client{cfg: cfg, http: httpClient, sink: sink, log: logger}
}

func (c *Client) Supports(mode string) bool {
	return strings.EqualFold(mode, domain.ModeService)
}

// Execute runs one scenario. The returned error carries a domain.Kind:
// KindServiceReported when the service flags the run, KindTransport for
// network, status and decoding failures, KindExtraction when the summary
// cannot be read.
func (c *Client) Execute(ctx context.Context, row domain.Row) (domain.Result, error) {
	req := Build(row)
	l := c.log.WithFields(log.Fields{
		"row":      row.Number,
		"scenario": NormalizeName(row.ScenarioName()),
	})

	resp, err := c.Submit(ctx, req)
	if err != nil {
		return domain.Result{}, err
	}
	if msg, failed := resp.ServiceError(); failed {
		return domain.Result{}, domain.E(domain.KindServiceReported, op, msg, nil)
	}

	var result domain.Result

	par, ok, fallback := resp.ParameterFile()
	if !ok {
		return domain.Result{}, domain.E(domain.KindTransport, op, "response has no parameter file", nil)
	}
	if fallback {
		l.WithField("name", par.Name).Warn("Parameter file located by position")
	}
	parArt, _, err := c.fetchArtifact(ctx, par)
	if err != nil {
		return domain.Result{}, err
	}
	result.Artifacts = append(result.Artifacts, parArt)

	sum, ok, fallback := resp.SummaryFile()
	if !ok {
		return domain.Result{}, domain.E(domain.KindTransport, op, "response has no summary file", nil)
	}
	if fallback {
		l.WithField("name", sum.Name).Warn("Summary file located by position")
	}
	sumArt, body, err := c.fetchArtifact(ctx, sum)
	if err != nil {
		return domain.Result{}, err
	}
	result.Artifacts = append(result.Artifacts, sumArt)

	metrics, err := summary.ExtractBytes(body)
	if err != nil {
		return domain.Result{}, err
	}
	result.Metrics = metrics

	aux, fallback := resp.Aux(c.cfg.AuxResult)
	if fallback {
		l.WithField("aux_result", c.cfg.AuxResult).Warn("Auxiliary result located by position")
	}
	result.Aux = aux

	return result, nil
}

// Submit posts a request and decodes the response.
func (c *Client) Submit(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, domain.E(domain.KindTransport, op, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Response{}, domain.E(domain.KindTransport, op, "create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, domain.E(domain.KindTransport, op, "post scenario", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, domain.E(domain.KindTransport, op, "read response", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return Response{}, domain.E(domain.KindTransport, op,
			fmt.Sprintf("unexpected status %s", httpResp.Status), nil)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, domain.E(domain.KindTransport, op, "decode response", err)
	}
	return resp, nil
}

// fetchArtifact downloads a file result and hands it to the sink.
func (c *Client) fetchArtifact(ctx context.Context, e ResultEntry) (domain.Artifact, []byte, error) {
	url := e.Text()
	if url == "" {
		return domain.Artifact{}, nil, domain.E(domain.KindTransport, op,
			fmt.Sprintf("result %q has no url", e.Name), nil)
	}
	name := fileName(e, url)
	if name == "" {
		return domain.Artifact{}, nil, domain.E(domain.KindTransport, op,
			fmt.Sprintf("cannot name artifact from %q", url), nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Artifact{}, nil, domain.E(domain.KindTransport, op, "create artifact request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Artifact{}, nil, domain.E(domain.KindTransport, op, "fetch "+name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Artifact{}, nil, domain.E(domain.KindTransport, op,
			fmt.Sprintf("fetch %s: unexpected status %s", name, resp.Status), nil)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Artifact{}, nil, domain.E(domain.KindTransport, op, "read "+name, err)
	}

	art := domain.Artifact{Name: name, URL: url}
	if c.sink != nil {
		loc, err := c.sink.Put(ctx, name, bytes.NewReader(body), int64(len(body)))
		if err != nil {
			return domain.Artifact{}, nil, domain.E(domain.KindTransport, op, "store "+name, err)
		}
		art.Location = loc
	}
	return art, body, nil
}
