package state

import (
	"sort"

	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/manifest"
)

// Diff compares the previous snapshot with the current one. A nil previous
// snapshot (first run) yields a nil report so the manifest omits the diff
// rather than claiming everything was added.
//
// For paths present on both sides, content hashes decide modification when
// both are recorded; otherwise any size or mtime difference is treated as
// modified. Clock skew can only cause an unnecessary rehash on a later
// run, never a missed change when hashes are available.
func Diff(prev, cur *Snapshot) *manifest.DiffReport {
	if prev == nil {
		return nil
	}
	report := &manifest.DiffReport{
		Added:        []string{},
		Removed:      []string{},
		Modified:     []manifest.ModifiedFile{},
		TotalCurrent: len(cur.Files),
	}

	for path, curFile := range cur.Files {
		prevFile, ok := prev.Files[path]
		if !ok {
			report.Added = append(report.Added, path)
			continue
		}
		if isModified(prevFile, curFile) {
			report.Modified = append(report.Modified, manifest.ModifiedFile{
				Path:       path,
				OldHash:    prevFile.SHA256,
				NewHash:    curFile.SHA256,
				OldSize:    prevFile.Size,
				NewSize:    curFile.Size,
				DeltaBytes: curFile.Size - prevFile.Size,
			})
			continue
		}
		report.UnchangedCount++
	}
	for path := range prev.Files {
		if _, ok := cur.Files[path]; !ok {
			report.Removed = append(report.Removed, path)
		}
	}

	sort.Strings(report.Added)
	sort.Strings(report.Removed)
	sort.Slice(report.Modified, func(i, j int) bool {
		return report.Modified[i].Path < report.Modified[j].Path
	})
	report.Changed = make([]string, len(report.Modified))
	for i, m := range report.Modified {
		report.Changed[i] = m.Path
	}
	return report
}

func isModified(prev, cur FileInfo) bool {
	if prev.SHA256 != "" && cur.SHA256 != "" {
		return prev.SHA256 != cur.SHA256
	}
	return prev.Size != cur.Size || prev.ModTimeNS != cur.ModTimeNS
}
