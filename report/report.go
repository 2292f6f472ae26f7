// Package report writes a CSV summary of discovered templates, one row per
// cluster, sorted by descending observation count.
package report

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mrlyc/drainminer/miner"
)

var header = []string{"cluster_id", "size", "template", "samples"}

// Write emits one CSV row per snapshot to w: cluster ID, observation count,
// template, and up to sample_capacity raw sample lines joined by " | ".
// Rows are sorted by descending size, breaking ties by ascending cluster
// ID so output is stable across runs over the same state.
func Write(w io.Writer, snapshots []miner.ClusterSnapshot) error {
	ordered := make([]miner.ClusterSnapshot, len(snapshots))
	copy(ordered, snapshots)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Size != ordered[j].Size {
			return ordered[i].Size > ordered[j].Size
		}
		return ordered[i].ID < ordered[j].ID
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "report: write header")
	}
	for _, s := range ordered {
		row := []string{
			strconv.Itoa(s.ID),
			strconv.Itoa(s.Size),
			s.Template,
			strings.Join(s.Samples, " | "),
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "report: write row for cluster %d", s.ID)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, "report: flush")
	}
	return nil
}
