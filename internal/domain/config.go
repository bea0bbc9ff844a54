package domain

// DistanceCosine is the only distance metric collections are created with.
const DistanceCosine = "cosine"

// RetrievalDefaults holds the engine settings used when configuration leaves them empty.
type RetrievalDefaults struct {
	Model             string
	Dimensions        int
	DistanceMetric    string
	MinScore          float64
	DefaultLimit      int
	MaxLimit          int
	DefaultCollection string
}

// DefaultRetrieval returns the defaults tuned for BAAI/bge-small-en.
func DefaultRetrieval() RetrievalDefaults {
	return RetrievalDefaults{
		Model:             "BAAI/bge-small-en",
		Dimensions:        384,
		DistanceMetric:    DistanceCosine,
		MinScore:          0.70,
		DefaultLimit:      10,
		MaxLimit:          100,
		DefaultCollection: "test_collection",
	}
}
