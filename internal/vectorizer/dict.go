package vectorizer

import (
	"fmt"
	"sort"
)

// DictVectorizer maps per-character feature dicts to fixed-width vectors.
type DictVectorizer struct {
	FeatureNames []string       `json:"feature_names"`
	FeatureIndex map[string]int `json:"feature_index"`
}

// NewDictVectorizer creates an empty DictVectorizer.
func NewDictVectorizer() *DictVectorizer {
	return &DictVectorizer{}
}

// Fit builds the feature mapping from a list of feature dicts.
// Feature names are sorted so the column layout does not depend on input order.
func (dv *DictVectorizer) Fit(data []map[string]any) {
	featureSet := make(map[string]bool)
	for _, d := range data {
		for k, v := range d {
			featureSet[featureKey(k, v)] = true
		}
	}

	dv.FeatureNames = make([]string, 0, len(featureSet))
	for f := range featureSet {
		dv.FeatureNames = append(dv.FeatureNames, f)
	}
	sort.Strings(dv.FeatureNames)

	dv.FeatureIndex = make(map[string]int, len(dv.FeatureNames))
	for i, f := range dv.FeatureNames {
		dv.FeatureIndex[f] = i
	}
}

// Extend appends the features of data that are not mapped yet, sorted among
// themselves, after the existing columns. Existing columns keep their index.
func (dv *DictVectorizer) Extend(data []map[string]any) {
	if dv.FeatureIndex == nil {
		dv.FeatureIndex = make(map[string]int)
	}
	added := make(map[string]bool)
	for _, d := range data {
		for k, v := range d {
			if f := featureKey(k, v); !added[f] {
				if _, ok := dv.FeatureIndex[f]; !ok {
					added[f] = true
				}
			}
		}
	}
	names := make([]string, 0, len(added))
	for f := range added {
		names = append(names, f)
	}
	sort.Strings(names)
	for _, f := range names {
		dv.FeatureIndex[f] = len(dv.FeatureNames)
		dv.FeatureNames = append(dv.FeatureNames, f)
	}
}

// Transform converts a feature dict to a sparse vector. Unknown features are dropped.
func (dv *DictVectorizer) Transform(d map[string]any) SparseVector {
	sv := NewSparseVector(len(dv.FeatureNames))
	for k, v := range d {
		if idx, ok := dv.FeatureIndex[featureKey(k, v)]; ok {
			if val := featureValue(v); val != 0 {
				sv.Set(idx, val)
			}
		}
	}
	return sv
}

// TransformDense converts a sequence of feature dicts into dense rows.
func (dv *DictVectorizer) TransformDense(seq []map[string]any) [][]float64 {
	rows := make([][]float64, len(seq))
	for i, d := range seq {
		rows[i] = dv.Transform(d).ToDense()
	}
	return rows
}

// VocabSize returns the number of features.
func (dv *DictVectorizer) VocabSize() int {
	return len(dv.FeatureNames)
}

// featureKey returns "name=value" for string values and the plain name otherwise.
func featureKey(name string, value any) string {
	if s, ok := value.(string); ok {
		return fmt.Sprintf("%s=%s", name, s)
	}
	return name
}

func featureValue(value any) float64 {
	switch v := value.(type) {
	case bool:
		if v {
			return 1.0
		}
		return 0.0
	case int:
		return float64(v)
	case float64:
		return v
	default:
		return 1.0
	}
}
