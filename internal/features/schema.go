// Package features defines the fixed 13-feature clinical input schema and
// validates raw caller input against it.
//
// The canonical feature order declared here is the order every model artifact
// must be trained with; the engine refuses to start against an artifact whose
// feature list differs from Names().
package features

// Kind classifies how a feature's domain is checked.
type Kind int

const (
	// Continuous features accept any finite value inside [Min, Max].
	Continuous Kind = iota
	// Binary features accept exactly 0 or 1.
	Binary
	// Categorical features accept integers inside the closed range [Min, Max].
	Categorical
)

func (k Kind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Binary:
		return "binary"
	case Categorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// Feature describes one clinical measurement.
type Feature struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
	Kind        Kind    `json:"-"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
}

// Count is the number of features in the schema.
const Count = 13

// Canonical feature indices.
const (
	Age = iota
	Sex
	ChestPain
	RestingBP
	Cholesterol
	FastingBloodSugar
	RestingECG
	MaxHeartRate
	ExerciseAngina
	STDepression
	STSlope
	Vessels
	Thalassemia
)

var schema = [Count]Feature{
	{Name: "age", Description: "Age", Unit: "years", Kind: Continuous, Min: 1, Max: 120},
	{Name: "sex", Description: "Sex (1 = male; 0 = female)", Unit: "flag", Kind: Binary, Min: 0, Max: 1},
	{Name: "cp", Description: "Chest pain type", Unit: "category", Kind: Categorical, Min: 0, Max: 3},
	{Name: "trestbps", Description: "Resting blood pressure", Unit: "mm Hg", Kind: Continuous, Min: 50, Max: 250},
	{Name: "chol", Description: "Serum cholesterol", Unit: "mg/dl", Kind: Continuous, Min: 100, Max: 700},
	{Name: "fbs", Description: "Fasting blood sugar > 120 mg/dl (1 = true; 0 = false)", Unit: "flag", Kind: Binary, Min: 0, Max: 1},
	{Name: "restecg", Description: "Resting electrocardiographic result", Unit: "category", Kind: Categorical, Min: 0, Max: 2},
	{Name: "thalach", Description: "Maximum heart rate achieved", Unit: "bpm", Kind: Continuous, Min: 50, Max: 250},
	{Name: "exang", Description: "Exercise induced angina (1 = yes; 0 = no)", Unit: "flag", Kind: Binary, Min: 0, Max: 1},
	{Name: "oldpeak", Description: "ST depression induced by exercise relative to rest", Unit: "mm", Kind: Continuous, Min: 0, Max: 10},
	{Name: "slope", Description: "Slope of the peak exercise ST segment", Unit: "category", Kind: Categorical, Min: 0, Max: 2},
	{Name: "ca", Description: "Number of major vessels colored by fluoroscopy", Unit: "count", Kind: Categorical, Min: 0, Max: 4},
	{Name: "thal", Description: "Thalassemia", Unit: "category", Kind: Categorical, Min: 0, Max: 3},
}

var index = func() map[string]int {
	m := make(map[string]int, Count)
	for i, f := range schema {
		m[f.Name] = i
	}
	return m
}()

// Schema returns a copy of the feature definitions in canonical order.
func Schema() []Feature {
	out := make([]Feature, Count)
	copy(out, schema[:])
	return out
}

// Names returns the feature names in canonical order.
func Names() []string {
	out := make([]string, Count)
	for i, f := range schema {
		out[i] = f.Name
	}
	return out
}

// Lookup returns the definition and canonical index of a feature.
func Lookup(name string) (Feature, int, bool) {
	i, ok := index[name]
	if !ok {
		return Feature{}, -1, false
	}
	return schema[i], i, true
}

// MatchesOrder reports whether names is exactly the canonical feature order.
func MatchesOrder(names []string) bool {
	if len(names) != Count {
		return false
	}
	for i, n := range names {
		if schema[i].Name != n {
			return false
		}
	}
	return true
}
