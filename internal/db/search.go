package db

// KNNQuery asks for the K nearest hashes of an index.
type KNNQuery struct {
	Index        string
	VectorField  string // defaults to DefaultVectorField
	Vector       []float32
	K            int
	ReturnFields []string
}

// KNNResult lists hits nearest first.
type KNNResult struct {
	Total int
	Hits  []KNNHit
}

// KNNHit is one matched hash. Similarity is 1 - cosine distance.
type KNNHit struct {
	Key        string
	Similarity float64
	Fields     map[string]string
}
