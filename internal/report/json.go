// Package report persists the outcome of a run.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/naka-gawa/repo-miner/internal/domain"
)

// MarshalJSON encodes result as an object keyed by repository, in input order.
// Accepted repositories map to their commit list, every other outcome to null.
func MarshalJSON(result domain.EvaluationResult) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, o := range result {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(o.Repository.String())
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		if o.Status != domain.StatusAccepted {
			buf.WriteString("null")
			continue
		}
		value, err := json.Marshal(o.Commits)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal commits of %s: %w", o.Repository, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// WriteJSON writes the pretty-printed report to w.
func WriteJSON(w io.Writer, result domain.EvaluationResult) error {
	raw, err := MarshalJSON(result)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return fmt.Errorf("failed to indent report: %w", err)
	}
	pretty.WriteByte('\n')
	_, err = w.Write(pretty.Bytes())
	return err
}

// SaveJSON writes the report to path, or to stdout when path is "-" or empty.
func SaveJSON(path string, result domain.EvaluationResult) error {
	if path == "" || path == "-" {
		return WriteJSON(os.Stdout, result)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := WriteJSON(f, result); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return f.Close()
}
