// Package localexec runs scenarios through a locally installed model
// executable. The model reads its file names from a control file with a
// fixed name in its working directory, so runs are serialized.
package localexec

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"bytemomo/rhembatch/internal/csip"
	"bytemomo/rhembatch/internal/domain"
	"bytemomo/rhembatch/internal/summary"

	log "github.com/sirupsen/logrus"
)

const op = "local"

// Default file name patterns.
const (
	DefaultControlFile = "kin.fil"
	DefaultParFile     = "{scenario}.par"
	DefaultClimateFile = "{state}_{station}.pre"
	DefaultOutputFile  = "{scenario}.sum"
)

type Config struct {
	Executable  string
	Args        []string
	WorkDir     string
	ControlFile string
	ParFile     string
	ClimateFile string
	OutputFile  string
}

func (c Config) withDefaults() Config {
	if c.WorkDir == "" {
		c.WorkDir = "."
	}
	if c.ControlFile == "" {
		c.ControlFile = DefaultControlFile
	}
	if c.ParFile == "" {
		c.ParFile = DefaultParFile
	}
	if c.ClimateFile == "" {
		c.ClimateFile = DefaultClimateFile
	}
	if c.OutputFile == "" {
		c.OutputFile = DefaultOutputFile
	}
	return c
}

// Files are the per-scenario file names, relative to the work dir.
type Files struct {
	Par     string
	Climate string
	Output  string
}

// ControlRecord is the line written to the control file.
func (f Files) ControlRecord() string {
	return fmt.Sprintf("%s,%s,%s,\" \",N,N,,N,N\n", f.Par, f.Climate, f.Output)
}

type Executor struct {
	cfg  Config
	sink domain.ArtifactSink
	log  *log.Entry

	mu sync.Mutex
}

// New creates an executor. sink may be nil.
func New(cfg Config, sink domain.ArtifactSink, logger *log.Entry) *Executor {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Executor{cfg: cfg.withDefaults(), sink: sink, log: logger}
}

func (e *Executor) Supports(mode string) bool {
	return strings.EqualFold(mode, domain.ModeLocal)
}

// FilesFor expands the configured patterns for row.
func (e *Executor) FilesFor(row domain.Row) Files {
	r := strings.NewReplacer(
		"{scenario}", csip.NormalizeName(row.ScenarioName()),
		"{state}", row.Cell(domain.ColStateID),
		"{station}", row.Cell(domain.ColClimateStationID),
		"{row}", strconv.Itoa(row.Number),
	)
	return Files{
		Par:     r.Replace(e.cfg.ParFile),
		Climate: r.Replace(e.cfg.ClimateFile),
		Output:  r.Replace(e.cfg.OutputFile),
	}
}

// Execute writes the parameter and control files, runs the model and reads
// its summary. A failing process is a transport error; a run that leaves no
// output file is reported as a model error.
func (e *Executor) Execute(ctx context.Context, row domain.Row) (domain.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	files := e.FilesFor(row)
	l := e.log.WithFields(log.Fields{"row": row.Number, "output": files.Output})
	path := func(name string) string { return filepath.Join(e.cfg.WorkDir, name) }

	if err := writeParFile(path(files.Par), row); err != nil {
		return domain.Result{}, domain.E(domain.KindTransport, op, "write parameter file", err)
	}
	if err := os.Remove(path(files.Output)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.Result{}, domain.E(domain.KindTransport, op, "remove stale output", err)
	}
	if err := os.WriteFile(path(e.cfg.ControlFile), []byte(files.ControlRecord()), 0o644); err != nil {
		return domain.Result{}, domain.E(domain.KindTransport, op, "write control file", err)
	}

	cmd := exec.CommandContext(ctx, e.cfg.Executable, e.cfg.Args...)
	cmd.Dir = e.cfg.WorkDir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	l.Debug("Running model executable")
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return domain.Result{}, domain.E(domain.KindTransport, op,
			fmt.Sprintf("run %s: %s", filepath.Base(e.cfg.Executable), lastLine(out.String())), err)
	}

	body, err := os.ReadFile(path(files.Output))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Result{}, domain.E(domain.KindServiceReported, op,
			fmt.Sprintf("model produced no output file %s", files.Output), nil)
	}
	if err != nil {
		return domain.Result{}, domain.E(domain.KindTransport, op, "read output", err)
	}

	metrics, err := summary.ExtractBytes(body)
	if err != nil {
		return domain.Result{}, err
	}

	result := domain.Result{Metrics: metrics}
	for _, name := range []string{files.Par, files.Output} {
		art, err := e.store(ctx, path(name))
		if err != nil {
			return domain.Result{}, err
		}
		result.Artifacts = append(result.Artifacts, art)
	}
	return result, nil
}

func (e *Executor) store(ctx context.Context, p string) (domain.Artifact, error) {
	art := domain.Artifact{Name: filepath.Base(p), Location: p}
	if e.sink == nil {
		return art, nil
	}
	f, err := os.Open(p)
	if err != nil {
		return art, domain.E(domain.KindTransport, op, "open "+art.Name, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return art, domain.E(domain.KindTransport, op, "stat "+art.Name, err)
	}
	loc, err := e.sink.Put(ctx, art.Name, f, st.Size())
	if err != nil {
		return art, domain.E(domain.KindTransport, op, "store "+art.Name, err)
	}
	art.Location = loc
	return art, nil
}

// writeParFile records the run parameters as "name = value" lines.
func writeParFile(p string, row domain.Row) error {
	var b strings.Builder
	fmt.Fprintf(&b, "! Parameter file for scenario: %s\n", csip.NormalizeName(row.ScenarioName()))
	for _, param := range csip.Build(row).Parameter {
		fmt.Fprintf(&b, "%s = %v\n", strings.ToUpper(param.Name), param.Value)
	}
	return os.WriteFile(p, []byte(b.String()), 0o644)
}

func lastLine(s string) string {
	var last string
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	if last == "" {
		return "no output"
	}
	return last
}
