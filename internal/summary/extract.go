// Package summary reads the annual averages out of a model summary report.
//
// A report starts with a two line banner followed by "label = value" lines:
//
//	     -ANNUAL-AVERAGES-
//
//	Avg-Precipitation(mm/year)=   300.5
//	Avg-Runoff(mm/year)=   12.3
//	Avg-Soil-Loss(ton/ha/year)=   0.6
//	Avg-SY(ton/ha/year)=   0.7
//
// Lines are matched by label, not by position, so reordered or additional
// lines do not shift values into the wrong metric.
package summary

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"bytemomo/rhembatch/internal/domain"
)

const (
	op         = "summary"
	headerRows = 2
)

type metric int

const (
	precip metric = iota
	runoff
	soilLoss
	sedYield
	numMetrics
)

var metricNames = [numMetrics]string{"avg precipitation", "avg runoff", "avg soil loss", "avg sediment yield"}

// Extract parses a summary report. It fails with a KindExtraction error when
// any of the four metrics is absent or not a number.
func Extract(r io.Reader) (domain.Metrics, error) {
	var (
		values [numMetrics]float64
		found  [numMetrics]bool
	)

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		if line <= headerRows {
			continue
		}
		label, raw, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		m, ok := classify(label)
		if !ok || found[m] {
			continue
		}
		v, err := parseValue(raw)
		if err != nil {
			return domain.Metrics{}, domain.E(domain.KindExtraction, op,
				fmt.Sprintf("line %d: %s", line, metricNames[m]), err)
		}
		values[m] = v
		found[m] = true
	}
	if err := sc.Err(); err != nil {
		return domain.Metrics{}, domain.E(domain.KindExtraction, op, "read report", err)
	}

	var missing []string
	for m := metric(0); m < numMetrics; m++ {
		if !found[m] {
			missing = append(missing, metricNames[m])
		}
	}
	if len(missing) > 0 {
		return domain.Metrics{}, domain.E(domain.KindExtraction, op,
			"missing "+strings.Join(missing, ", "), nil)
	}

	return domain.Metrics{
		Precip:   values[precip],
		Runoff:   values[runoff],
		SoilLoss: values[soilLoss],
		SedYield: values[sedYield],
	}, nil
}

// ExtractBytes is Extract over an in-memory report.
func ExtractBytes(b []byte) (domain.Metrics, error) {
	return Extract(bytes.NewReader(b))
}

// classify maps a label such as "Avg-Soil-Loss(ton/ha/year)" or "avg_soilloss"
// to a metric. Units in parentheses are ignored.
func classify(label string) (metric, bool) {
	if i := strings.IndexByte(label, '('); i >= 0 {
		label = label[:i]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	key := strings.TrimPrefix(b.String(), "avg")
	key = strings.TrimPrefix(key, "average")

	switch {
	case strings.Contains(key, "precip"):
		return precip, true
	case strings.Contains(key, "runoff"):
		return runoff, true
	case strings.Contains(key, "soilloss"):
		return soilLoss, true
	case strings.Contains(key, "sed"), key == "sy":
		return sedYield, true
	}
	return 0, false
}

func parseValue(raw string) (float64, error) {
	v := strings.TrimSpace(raw)
	for {
		prev := v
		v = strings.TrimSpace(strings.Trim(v, `'"`))
		v = strings.TrimSuffix(v, `\n`)
		if v == prev {
			break
		}
	}
	if fields := strings.Fields(v); len(fields) > 0 {
		v = fields[0]
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", strings.TrimSpace(raw))
	}
	return f, nil
}
