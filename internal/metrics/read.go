package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Log is the parsed content of a latency log, with or without its summary block.
type Log struct {
	Labels  []string
	Times   []string
	Columns [][]int64
}

// ReadLog loads a latency log written by Logger.
func ReadLog(path string) (Log, error) {
	file, err := os.Open(path)
	if err != nil {
		return Log{}, err
	}
	defer file.Close()

	return readLog(file)
}

func readLog(r io.Reader) (Log, error) {
	reader := csv.NewReader(r)
	// Summary rows are one cell wider than data rows.
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return Log{}, err
	}

	var log Log
	header := false
	for i, rec := range records {
		// Summary and spacer rows start with a blank cell.
		if len(rec) == 0 || rec[0] == "" {
			continue
		}
		if !header {
			if rec[0] != timeHeader || len(rec) < 2 {
				return Log{}, fmt.Errorf("missing header at line %d", i+1)
			}
			header = true
			log.Labels = append([]string(nil), rec[1:]...)
			log.Labels[0] = strings.TrimSuffix(log.Labels[0], nearestHopSuffix)
			log.Columns = make([][]int64, len(log.Labels))
			continue
		}
		if len(rec) != len(log.Labels)+1 {
			return Log{}, fmt.Errorf("invalid record at line %d", i+1)
		}
		log.Times = append(log.Times, rec[0])
		for c, cell := range rec[1:] {
			v, err := strconv.ParseInt(cell, 10, 64)
			if err != nil {
				return Log{}, fmt.Errorf("invalid value at line %d: %w", i+1, err)
			}
			log.Columns[c] = append(log.Columns[c], v)
		}
	}
	if !header {
		return Log{}, fmt.Errorf("missing header")
	}
	return log, nil
}
