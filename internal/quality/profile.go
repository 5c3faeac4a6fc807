package quality

// Dimension names used as breakdown keys.
const (
	DimLength      = "length"
	DimStructure   = "structure"
	DimMedia       = "media"
	DimLinks       = "internal_links"
	DimNaturalness = "naturalness"
	DimMetadata    = "metadata"
	DimReadability = "readability"
)

var dimensions = []string{DimLength, DimStructure, DimMedia, DimLinks, DimNaturalness, DimMetadata, DimReadability}

// Weights are the point caps of each dimension; they sum to 100.
type Weights struct {
	Length      float64
	Structure   float64
	Media       float64
	Links       float64
	Naturalness float64
	Metadata    float64
	Readability float64
}

func (w Weights) Total() float64 {
	return w.Length + w.Structure + w.Media + w.Links + w.Naturalness + w.Metadata + w.Readability
}

// Profile is a rubric: targets plus dimension weights.
type Profile struct {
	Name             string
	TargetWords      int
	MinWords         int
	MinSections      int
	MinImages        int
	MinInternalLinks int
	Weights          Weights
}

func LongForm() Profile {
	return Profile{
		Name:             "long_form",
		TargetWords:      2500,
		MinWords:         1500,
		MinSections:      6,
		MinImages:        3,
		MinInternalLinks: 2,
		Weights: Weights{
			Length:      25,
			Structure:   15,
			Media:       10,
			Links:       5,
			Naturalness: 20,
			Metadata:    10,
			Readability: 15,
		},
	}
}

func ShortForm() Profile {
	return Profile{
		Name:             "short_form",
		TargetWords:      180,
		MinWords:         110,
		MinSections:      2,
		MinImages:        1,
		MinInternalLinks: 1,
		Weights: Weights{
			Length:      20,
			Structure:   10,
			Media:       10,
			Links:       5,
			Naturalness: 25,
			Metadata:    15,
			Readability: 15,
		},
	}
}
