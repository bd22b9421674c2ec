package view

import (
	"fmt"
	"slices"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/devrev/tablecore/internal/model"
	"github.com/devrev/tablecore/internal/storage"
	"github.com/devrev/tablecore/internal/timeline"
)

// Input is everything a view is reconstructed from
type Input struct {
	// Timeline decides visibility: a data file is part of the view only when the instant it
	// belongs to is present in the timeline, in any state
	Timeline *timeline.Timeline
	Files    []storage.FileInfo
	// PendingCompactions maps file groups to the instant of the requested or inflight
	// compaction that targets them
	PendingCompactions map[model.FileGroupID]string
}

// View is an immutable reconstruction of file groups and their slices
type View struct {
	timeline    *timeline.Timeline
	groups      map[model.FileGroupID]*model.FileGroup
	byPartition map[string][]*model.FileGroup
	partitions  []string
	pending     map[model.FileGroupID]string
	anomalies   *multierror.Error
}

type groupFiles struct {
	bases []model.BaseFile
	logs  []model.LogFile
}

// Build reconstructs a view. Unparsable file names are excluded and reported through
// Anomalies; they never fail the build.
func Build(in Input) *View {
	v := &View{
		timeline:    in.Timeline,
		groups:      make(map[model.FileGroupID]*model.FileGroup),
		byPartition: make(map[string][]*model.FileGroup),
		pending:     make(map[model.FileGroupID]string, len(in.PendingCompactions)),
	}
	for id, ts := range in.PendingCompactions {
		v.pending[id] = ts
	}

	files := make(map[model.FileGroupID]*groupFiles)
	for _, f := range in.Files {
		name, err := model.ParseDataFileName(f.Name)
		if err != nil {
			v.anomalies = multierror.Append(v.anomalies, fmt.Errorf("%s: %w", f.Path, err))
			continue
		}
		id := model.FileGroupID{PartitionPath: f.PartitionPath, FileID: name.FileID}
		gf, ok := files[id]
		if !ok {
			gf = &groupFiles{}
			files[id] = gf
		}
		switch name.Kind {
		case model.FileKindBase:
			gf.bases = append(gf.bases, model.BaseFile{
				FileID:      name.FileID,
				InstantTime: name.InstantTime,
				WriteToken:  name.WriteToken,
				Path:        f.Path,
				Size:        f.Size,
			})
		case model.FileKindLog:
			gf.logs = append(gf.logs, model.LogFile{
				FileID:          name.FileID,
				DeltaCommitTime: name.InstantTime,
				Version:         name.Version,
				WriteToken:      name.WriteToken,
				Path:            f.Path,
				Size:            f.Size,
			})
		}
	}

	for id, gf := range files {
		if group := v.buildGroup(id, gf); group != nil {
			v.groups[id] = group
			v.byPartition[id.PartitionPath] = append(v.byPartition[id.PartitionPath], group)
		}
	}
	for partition, groups := range v.byPartition {
		sort.Slice(groups, func(i, j int) bool { return groups[i].ID.FileID < groups[j].ID.FileID })
		v.partitions = append(v.partitions, partition)
	}
	sort.Strings(v.partitions)
	return v
}

func (v *View) visible(ts string) bool {
	return v.timeline.ContainsInstant(ts)
}

// buildGroup opens one slice per visible base instant. A base file is hidden while the
// compaction producing it is pending; logs attach to the slice rooted at the instant they
// target, so a group that has only logs gets a base-less slice rooted at the delta commit
// that created it.
func (v *View) buildGroup(id model.FileGroupID, gf *groupFiles) *model.FileGroup {
	pendingTs, hasPending := v.pending[id]
	slicesByBase := make(map[string]*model.FileSlice)
	open := func(base string) *model.FileSlice {
		s, ok := slicesByBase[base]
		if !ok {
			s = &model.FileSlice{GroupID: id, BaseInstantTime: base}
			slicesByBase[base] = s
		}
		return s
	}

	sort.Slice(gf.bases, func(i, j int) bool {
		if gf.bases[i].InstantTime != gf.bases[j].InstantTime {
			return gf.bases[i].InstantTime < gf.bases[j].InstantTime
		}
		return gf.bases[i].WriteToken < gf.bases[j].WriteToken
	})
	for i := range gf.bases {
		b := gf.bases[i]
		if !v.visible(b.InstantTime) || (hasPending && b.InstantTime == pendingTs) {
			continue
		}
		s := open(b.InstantTime)
		if s.BaseFile == nil {
			s.BaseFile = &b
		}
	}
	if hasPending && v.visible(pendingTs) {
		open(pendingTs)
	}
	for _, lf := range gf.logs {
		if _, ok := slicesByBase[lf.DeltaCommitTime]; !ok && v.visible(lf.DeltaCommitTime) {
			open(lf.DeltaCommitTime)
		}
	}
	for _, lf := range gf.logs {
		if s, ok := slicesByBase[lf.DeltaCommitTime]; ok {
			s.LogFiles = append(s.LogFiles, lf)
		}
	}

	if len(slicesByBase) == 0 {
		return nil
	}
	group := &model.FileGroup{ID: id}
	for _, s := range slicesByBase {
		model.SortLogFiles(s.LogFiles)
		group.Slices = append(group.Slices, *s)
	}
	sort.Slice(group.Slices, func(i, j int) bool {
		return group.Slices[i].BaseInstantTime < group.Slices[j].BaseInstantTime
	})
	return group
}

// Timeline returns the timeline the view was built from
func (v *View) Timeline() *timeline.Timeline { return v.timeline }

// Anomalies returns the aggregated file naming problems found while building, or nil
func (v *View) Anomalies() error {
	return v.anomalies.ErrorOrNil()
}

// AnomalyCount returns the number of excluded files
func (v *View) AnomalyCount() int {
	if v.anomalies == nil {
		return 0
	}
	return len(v.anomalies.Errors)
}

// Partitions returns the partition paths holding at least one file group
func (v *View) Partitions() []string {
	return slices.Clone(v.partitions)
}

// FileGroup returns one file group
func (v *View) FileGroup(id model.FileGroupID) (*model.FileGroup, bool) {
	g, ok := v.groups[id]
	return g, ok
}

// FileGroups returns the file groups of a partition ordered by file id
func (v *View) FileGroups(partition string) []*model.FileGroup {
	return slices.Clone(v.byPartition[partition])
}

// AllFileGroups returns every file group ordered by partition then file id
func (v *View) AllFileGroups() []*model.FileGroup {
	var out []*model.FileGroup
	for _, p := range v.partitions {
		out = append(out, v.byPartition[p]...)
	}
	return out
}

// PendingCompactionInstant returns the pending compaction targeting a file group
func (v *View) PendingCompactionInstant(id model.FileGroupID) (string, bool) {
	ts, ok := v.pending[id]
	return ts, ok
}

// LatestFileSlices returns the latest slice of every file group in partition, unmerged
func (v *View) LatestFileSlices(partition string) []model.FileSlice {
	var out []model.FileSlice
	for _, g := range v.byPartition[partition] {
		if s, ok := g.LatestSlice(); ok {
			out = append(out, s)
		}
	}
	return out
}

// LatestFileSlicesBeforeOrOn returns, per file group, the latest slice whose base instant is <= maxInstant
func (v *View) LatestFileSlicesBeforeOrOn(partition, maxInstant string) []model.FileSlice {
	var out []model.FileSlice
	for _, g := range v.byPartition[partition] {
		if s, _, ok := g.LatestSliceBeforeOrOn(maxInstant); ok {
			out = append(out, s)
		}
	}
	return out
}

// LatestMergedFileSlicesBeforeOrOn is LatestFileSlicesBeforeOrOn for readers: when the
// latest slice belongs to a pending compaction, it is merged into the previous slice so the
// result carries the previous base file, the logs that compaction will fold in, and the logs
// written since it was requested.
func (v *View) LatestMergedFileSlicesBeforeOrOn(partition, maxInstant string) []model.FileSlice {
	var out []model.FileSlice
	for _, g := range v.byPartition[partition] {
		s, idx, ok := g.LatestSliceBeforeOrOn(maxInstant)
		if !ok {
			continue
		}
		if pendingTs, isPending := v.pending[g.ID]; isPending && s.BaseInstantTime == pendingTs && idx > 0 {
			s = mergeSlices(g.Slices[idx-1], s)
		}
		out = append(out, s)
	}
	return out
}

func mergeSlices(prev, pending model.FileSlice) model.FileSlice {
	logs := make([]model.LogFile, 0, len(prev.LogFiles)+len(pending.LogFiles))
	logs = append(logs, prev.LogFiles...)
	logs = append(logs, pending.LogFiles...)
	return model.FileSlice{
		GroupID:         prev.GroupID,
		BaseInstantTime: prev.BaseInstantTime,
		BaseFile:        prev.BaseFile,
		LogFiles:        logs,
	}
}

// LatestBaseFiles returns, per file group, the base file of the latest slice that has one
func (v *View) LatestBaseFiles(partition string) []model.BaseFile {
	var out []model.BaseFile
	for _, g := range v.byPartition[partition] {
		for i := len(g.Slices) - 1; i >= 0; i-- {
			if g.Slices[i].BaseFile != nil {
				out = append(out, *g.Slices[i].BaseFile)
				break
			}
		}
	}
	return out
}
