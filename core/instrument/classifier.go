package instrument

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"TrackLens/core/audio"
	"TrackLens/logger"
)

// Classifier scores 16 kHz mono audio against a fixed label vocabulary.
// Implementations must be safe for concurrent use.
type Classifier interface {
	// Labels returns the class names, indexed like the score columns.
	Labels() []string
	// Classify returns one row of per-class scores for each audio frame.
	Classify(ctx context.Context, samples []float64) ([][]float64, error)
}

// LoadLabels reads an AudioSet style class map (index,mid,display_name)
// with a header row and returns the display names in index order.
func LoadLabels(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse class map: %w", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("class map has no entries")
	}

	labels := make([]string, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < 3 {
			return nil, fmt.Errorf("class map row %d has %d columns, want 3", i+2, len(row))
		}
		labels = append(labels, strings.TrimSpace(row[2]))
	}
	return labels, nil
}

// LoadLabelsFile is LoadLabels over a file on disk.
func LoadLabelsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open class map %s: %w", path, err)
	}
	defer f.Close()
	return LoadLabels(f)
}

// CommandClassifier runs an external inference program. The program reads
// little-endian float32 16 kHz mono PCM on stdin and prints
// {"scores": [[...], ...]} on stdout, one row per frame.
type CommandClassifier struct {
	name    string
	args    []string
	labels  []string
	timeout time.Duration
}

type commandOutput struct {
	Scores [][]float64 `json:"scores"`
}

// NewCommandClassifier builds a classifier from a command line such as
// "python3 yamnet_infer.py". The label vocabulary is loaded once here.
func NewCommandClassifier(command, labelsPath string, timeout time.Duration) (*CommandClassifier, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("classifier command is empty")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, fmt.Errorf("classifier executable %q not found: %w", fields[0], err)
	}

	labels, err := LoadLabelsFile(labelsPath)
	if err != nil {
		return nil, err
	}

	logger.Info("instrument classifier loaded",
		logger.String("command", command),
		logger.Int("labels", len(labels)))

	return &CommandClassifier{name: fields[0], args: fields[1:], labels: labels, timeout: timeout}, nil
}

// Labels implements Classifier.
func (c *CommandClassifier) Labels() []string {
	return c.labels
}

// Classify implements Classifier.
func (c *CommandClassifier) Classify(ctx context.Context, samples []float64) ([][]float64, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.name, c.args...)
	cmd.Stdin = bytes.NewReader(audio.EncodeFloat32LE(samples))
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("classifier execution failed: %w\nClassifier Error: %s", err, stderr.String())
	}

	var parsed commandOutput
	if err := json.Unmarshal(out.Bytes(), &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal classifier output: %w", err)
	}
	for i, row := range parsed.Scores {
		if len(row) != len(c.labels) {
			return nil, fmt.Errorf("classifier frame %d has %d scores, want %d", i, len(row), len(c.labels))
		}
	}
	return parsed.Scores, nil
}
