package validation

type Severity string

const (
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

type IssueType string

const (
	TypeStructural  IssueType = "STRUCTURAL"
	TypeReferential IssueType = "REFERENTIAL"
	TypeSpatial     IssueType = "SPATIAL"
	TypePermission  IssueType = "PERMISSION"
	TypeUnknown     IssueType = "UNKNOWN"
)

// Issue codes.
const (
	CodePlacementIDRequired = "placement-id-required"
	CodeAssetIDRequired     = "asset-id-required"
	CodePositionSanity      = "transform-position-sanity"
	CodeRotationSanity      = "transform-rotation-sanity"
	CodeScaleSanity         = "transform-scale-sanity"
	CodeScalePositive       = "transform-scale-positive"
	CodeScaleThreshold      = "transform-scale-threshold"
	CodeRegionExistence     = "region-existence-check"
	CodeSpaceMembership     = "space-membership-check"
	CodePointOverlap        = "spatial-point-overlap"
	CodeAddDuplicate        = "commit-add-duplicate-check"
	CodeUpdateReference     = "commit-update-reference-check"
	CodeUpdateIDMismatch    = "commit-update-id-mismatch"
	CodeRemoveReference     = "commit-remove-reference-check"
)

// CommitCodePrefix marks codes only change validation raises.
const CommitCodePrefix = "commit-"

type Issue struct {
	IssueID          string         `json:"issue_id"`
	Code             string         `json:"code"`
	Severity         Severity       `json:"severity"`
	Type             IssueType      `json:"type"`
	Message          string         `json:"message"`
	PlacementID      string         `json:"placement_id,omitempty"`
	DraftPlacementID string         `json:"draft_placement_id,omitempty"`
	Details          map[string]any `json:"details,omitempty"`
}

type Result struct {
	Issues     []Issue `json:"issues"`
	IsBlocking bool    `json:"is_blocking"`
}

func NewResult(issues []Issue) Result {
	r := Result{Issues: issues}
	for _, is := range issues {
		if is.Severity == SeverityError {
			r.IsBlocking = true
			break
		}
	}
	return r
}

// Merge concatenates results in argument order.
func Merge(results ...Result) Result {
	var issues []Issue
	for _, r := range results {
		issues = append(issues, r.Issues...)
	}
	return NewResult(issues)
}

// WithIDPrefix returns a copy whose issue ids are prefixed, keeping ids
// unique when results from several validation passes are merged.
func (r Result) WithIDPrefix(prefix string) Result {
	if prefix == "" || len(r.Issues) == 0 {
		return r
	}
	issues := make([]Issue, len(r.Issues))
	for i, is := range r.Issues {
		is.IssueID = prefix + is.IssueID
		issues[i] = is
	}
	return NewResult(issues)
}

// Filter keeps the issues for which keep returns true.
func (r Result) Filter(keep func(Issue) bool) Result {
	var issues []Issue
	for _, is := range r.Issues {
		if keep(is) {
			issues = append(issues, is)
		}
	}
	return NewResult(issues)
}

func (r Result) Count(sev Severity) int {
	n := 0
	for _, is := range r.Issues {
		if is.Severity == sev {
			n++
		}
	}
	return n
}
