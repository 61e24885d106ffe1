package wer

import (
	"html"
	"strings"

	"github.com/MrWong99/editscore/pkg/align"
)

// Highlight renders both lanes of a as HTML, joined by sep. Substituted and
// deleted reference tokens are struck through in red, substituted hypothesis
// tokens are blue and inserted ones green. The missing side of an insertion or
// deletion renders as an empty slot so that the two lines stay position
// aligned.
func Highlight(a align.Alignment[string], sep string) (ref, hyp string) {
	refs := make([]string, 0, len(a.Steps))
	hyps := make([]string, 0, len(a.Steps))

	for _, s := range a.Steps {
		r, h := html.EscapeString(s.Ref), html.EscapeString(s.Hyp)
		switch s.Op {
		case align.OpMatch:
			refs = append(refs, r)
			hyps = append(hyps, h)
		case align.OpSubstitution:
			refs = append(refs, "<span style='color: red;'><del>"+r+"</del></span>")
			hyps = append(hyps, "<span style='color: blue;'>"+h+"</span>")
		case align.OpDeletion:
			refs = append(refs, "<span style='color: red;'><del>"+r+"</del></span>")
			hyps = append(hyps, "")
		case align.OpInsertion:
			refs = append(refs, "")
			hyps = append(hyps, "<span style='color: green;'>"+h+"</span>")
		}
	}
	return strings.Join(refs, sep), strings.Join(hyps, sep)
}
