package invariants

type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Violation codes.
const (
	CodePlacementIDNotUnique      = "world.placement_id_not_unique"
	CodePlacementRegionNotFound   = "world.placement_region_not_found"
	CodePlacementSpaceNotInRegion = "world.placement_space_not_in_region"

	CodeSpatialRegionMismatch = "spatial.region_query_mismatch"
	CodeSpatialSampleMissing  = "spatial.sample_not_indexed"
	CodeSpatialIndexFailed    = "spatial.index_failed"

	CodeDiffBucketsOverlap = "diff.buckets_overlap"
	CodeDiffNotCanonical   = "diff.not_canonical"

	CodeIssuePlacementNotFound = "validation.issue_placement_not_found"
	CodeIssueDraftNotFound     = "validation.issue_draft_placement_not_found"

	CodeLinkPlacementNotFound = "linking.placement_not_found"
	CodeLinkRegionNotFound    = "linking.region_not_found"
	CodeLinkEmptyPath         = "linking.empty_usd_path"
	CodeLinkEmptyNodeID       = "linking.empty_node_id"
)

type Violation struct {
	Code     string         `json:"code"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

type Report struct {
	Violations  []Violation `json:"violations"`
	HasErrors   bool        `json:"has_errors"`
	HasWarnings bool        `json:"has_warnings"`
}

func NewReport(vs []Violation) Report {
	if vs == nil {
		vs = []Violation{}
	}
	r := Report{Violations: vs}
	for _, v := range vs {
		switch v.Severity {
		case SeverityError:
			r.HasErrors = true
		case SeverityWarning:
			r.HasWarnings = true
		}
	}
	return r
}

func (r Report) Count(code string) int {
	n := 0
	for _, v := range r.Violations {
		if v.Code == code {
			n++
		}
	}
	return n
}
