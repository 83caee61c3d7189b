package normalize

const (
	FieldImageURL       = "imageUrl"
	FieldImagePublicID  = "imagePublicId"
	FieldImageURLs      = "imageUrls"
	FieldImagePublicIDs = "imagePublicIds"
)

type fieldPair struct {
	legacy    string
	canonical string
}

var imagePairs = []fieldPair{
	{legacy: FieldImageURL, canonical: FieldImageURLs},
	{legacy: FieldImagePublicID, canonical: FieldImagePublicIDs},
}

// Plan is the minimal set of field operations that brings one document to
// the canonical image shape.
type Plan struct {
	Set   map[string]any
	Unset []string
}

func (p Plan) Empty() bool {
	return len(p.Set) == 0 && len(p.Unset) == 0
}

func planDocument(fields map[string]any, opts Options) Plan {
	plan := Plan{Set: map[string]any{}}
	for _, pair := range imagePairs {
		legacy := classifyLegacy(fields, pair.legacy)
		canonical := classifyCanonical(fields, pair.canonical)
		seeded := false

		switch legacy.State {
		case LegacyValue:
			if canonical.State != CanonicalSequence || (opts.SeedEmptySequences && len(canonical.Items) == 0) {
				plan.Set[pair.canonical] = legacy.Values
				seeded = true
			}
			plan.Unset = append(plan.Unset, pair.legacy)
		case LegacyNull, LegacyEmpty:
			plan.Unset = append(plan.Unset, pair.legacy)
		case LegacyAbsent:
		}

		if seeded || canonical.State == CanonicalSequence {
			continue
		}
		switch canonical.State {
		case CanonicalMistyped:
			if items, ok := canonical.salvage(); ok {
				plan.Set[pair.canonical] = items
				continue
			}
			plan.Set[pair.canonical] = []any{}
		case CanonicalAbsent, CanonicalNull:
			plan.Set[pair.canonical] = []any{}
		}
	}
	if len(plan.Set) == 0 {
		plan.Set = nil
	}
	return plan
}
