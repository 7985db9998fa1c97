package ledger

// ContractVersion numbers the column contract below. Columns are only ever
// added; a rename or removal needs a new version and a migration of the table.
const ContractVersion = 2

// Source-of-truth columns, filled by people. The pipeline reads them and
// never writes them.
const (
	ColSpeaker     = "Speaker"
	ColTitle       = "Title"
	ColEvent       = "Event"
	ColAffiliation = "Affiliation"
	ColVideoURL    = "YT full link"
	ColResourceURL = "Resource URL"
	ColPaperText   = "Paper text"
)

// Pipeline output columns.
const (
	ColSlides            = "Slides"
	ColTranscript        = "Transcript"
	ColSRT               = "SRT"
	ColResources         = "Resources"
	ColSpeakerValidation = "Speaker validation"
	ColParagraph         = "Paragraph"
	ColHooks             = "Hooks (AI)"
	ColLinkedInContent   = "LI content"
	ColXContent          = "X + Bsky content"
	ColLinkedInPost      = "LI post"
	ColXPost             = "X post"
	ColBlueskyPost       = "Bsky post"
	ColEvalNotes         = "Eval notes"
)

// Status columns. Only Adapter.Write sets these.
const (
	ColStatus   = "Webhook status"
	ColProgress = "Webhook progress"
)

// SourceColumns are the human-owned inputs.
var SourceColumns = []string{
	ColSpeaker, ColTitle, ColEvent, ColAffiliation, ColVideoURL, ColResourceURL, ColPaperText,
}

// OutputColumns are written by pipeline stages.
var OutputColumns = []string{
	ColSlides, ColTranscript, ColSRT, ColResources, ColSpeakerValidation,
	ColParagraph, ColHooks, ColLinkedInContent, ColXContent,
	ColLinkedInPost, ColXPost, ColBlueskyPost, ColEvalNotes,
}

// AllColumns lists the contract in display order.
func AllColumns() []string {
	out := make([]string, 0, len(SourceColumns)+len(OutputColumns)+2)
	out = append(out, SourceColumns...)
	out = append(out, OutputColumns...)
	return append(out, ColStatus, ColProgress)
}

// IsSource reports whether col is a human-owned input column.
func IsSource(col string) bool {
	for _, c := range SourceColumns {
		if c == col {
			return true
		}
	}
	return false
}
