package features

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleRaw() map[string]any {
	return map[string]any{
		"age": 63, "sex": 1, "cp": 3, "trestbps": 145, "chol": 233,
		"fbs": 1, "restecg": 0, "thalach": 150, "exang": 0, "oldpeak": 2.3,
		"slope": 0, "ca": 0, "thal": 1,
	}
}

func TestValidate_ExampleRecord(t *testing.T) {
	rec, err := Validate(exampleRaw())
	require.NoError(t, err)

	want := []float64{63, 1, 3, 145, 233, 1, 0, 150, 0, 2.3, 0, 0, 1}
	assert.Equal(t, want, rec.Vector())
	assert.Equal(t, 2.3, rec.Value(STDepression))
	assert.Equal(t, 145.0, rec.Map()["trestbps"])
}

func TestValidate_VectorIsCopy(t *testing.T) {
	rec, err := Validate(exampleRaw())
	require.NoError(t, err)

	v := rec.Vector()
	v[Age] = 99
	assert.Equal(t, 63.0, rec.Value(Age))
}

func TestValidate_CoercesNumericStrings(t *testing.T) {
	raw := exampleRaw()
	raw["age"] = " 63 "
	raw["oldpeak"] = "2.3"
	raw["sex"] = uint8(1)
	raw["chol"] = int64(233)
	raw["thalach"] = float32(150)
	raw["trestbps"] = json.Number("145")

	rec, err := Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, 63.0, rec.Value(Age))
	assert.Equal(t, 2.3, rec.Value(STDepression))
	assert.Equal(t, 1.0, rec.Value(Sex))
	assert.Equal(t, 145.0, rec.Value(RestingBP))
}

func TestValidate_RejectsNonNumericTypes(t *testing.T) {
	raw := exampleRaw()
	raw["age"] = true
	raw["sex"] = true
	raw["fbs"] = false
	raw["cp"] = map[string]any{"value": 3}
	raw["ca"] = []any{0}

	_, err := Validate(raw)
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)

	reasons := map[string]string{}
	for _, v := range serr.Invalid {
		reasons[v.Field] = v.Reason
	}
	assert.Len(t, reasons, 5)
	assert.Equal(t, "not numeric: boolean", reasons["age"])
	assert.Equal(t, "not numeric: boolean", reasons["sex"])
	assert.Equal(t, "not numeric: boolean", reasons["fbs"])
	assert.Contains(t, reasons["cp"], "not numeric")
	assert.Contains(t, reasons["ca"], "not numeric")
}

func TestValidate_CategoricalBoundaries(t *testing.T) {
	for _, useMax := range []bool{false, true} {
		raw := exampleRaw()
		for _, f := range Schema() {
			if f.Kind == Continuous {
				continue
			}
			if useMax {
				raw[f.Name] = f.Max
			} else {
				raw[f.Name] = f.Min
			}
		}
		_, err := Validate(raw)
		assert.NoError(t, err, "useMax=%v", useMax)
	}
}

func TestValidate_OneUnitOutsideRange(t *testing.T) {
	for _, f := range Schema() {
		for _, v := range []float64{f.Min - 1, f.Max + 1} {
			raw := exampleRaw()
			raw[f.Name] = v

			_, err := Validate(raw)
			require.Error(t, err, "%s=%g", f.Name, v)

			var serr *SchemaError
			require.ErrorAs(t, err, &serr)
			require.Len(t, serr.Invalid, 1)
			assert.Equal(t, f.Name, serr.Invalid[0].Field)
		}
	}
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	raw := exampleRaw()
	delete(raw, "age")
	delete(raw, "thal")
	raw["cp"] = 7
	raw["chol"] = "high"
	raw["fbs"] = 0.5
	raw["slope"] = 1.5
	raw["oldpeak"] = nil
	raw["exang"] = false
	raw["restecg"] = map[string]any{"v": 0}
	raw["target"] = 1
	raw["id"] = "p-1"

	_, err := Validate(raw)
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)

	assert.Equal(t, []string{"age", "thal"}, serr.Missing)
	assert.Equal(t, []string{"id", "target"}, serr.Unexpected)

	var invalid []string
	for _, v := range serr.Invalid {
		invalid = append(invalid, v.Field)
	}
	assert.Equal(t, []string{"cp", "chol", "fbs", "restecg", "exang", "oldpeak", "slope"}, invalid)
	assert.Contains(t, err.Error(), "missing: age, thal")
	assert.Contains(t, err.Error(), "exang: not numeric: boolean")
	assert.Len(t, serr.Fields(), 11)
}

func TestValidate_NonFinite(t *testing.T) {
	for _, v := range []any{"NaN", "Inf", "-Inf", ""} {
		raw := exampleRaw()
		raw["age"] = v
		_, err := Validate(raw)
		var serr *SchemaError
		require.ErrorAs(t, err, &serr, "value %q", v)
		assert.Equal(t, "age", serr.Invalid[0].Field)
	}
}

func TestFromVector(t *testing.T) {
	rec, err := FromVector([]float64{63, 1, 3, 145, 233, 1, 0, 150, 0, 2.3, 0, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, 233.0, rec.Value(Cholesterol))

	_, err = FromVector([]float64{1, 2})
	assert.Error(t, err)
}

func TestMatchesOrder(t *testing.T) {
	assert.True(t, MatchesOrder(Names()))

	swapped := Names()
	swapped[0], swapped[1] = swapped[1], swapped[0]
	assert.False(t, MatchesOrder(swapped))
	assert.False(t, MatchesOrder(Names()[:12]))
}

func TestParseCSV(t *testing.T) {
	data := "id,Age,sex,cp,trestbps,chol,fbs,restecg,thalach,exang,oldpeak,slope,ca,thal,target\n" +
		"1,63,1,3,145,233,1,0,150,0,2.3,0,0,1,1\n" +
		"2,37,1,2,130,250,0,1,187,0,3.5,0,0,2,1\n" +
		"3,41,0,1\n"

	rows, err := ParseCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "63", rows[0]["age"])
	assert.NotContains(t, rows[0], "id")
	assert.NotContains(t, rows[0], "target")

	_, err = Validate(rows[1])
	assert.NoError(t, err)

	_, err = Validate(rows[2])
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Missing, "trestbps")
}

func TestParseCSV_Errors(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""))
	assert.Error(t, err)

	_, err = ParseCSV(strings.NewReader("foo,bar\n1,2\n"))
	assert.Error(t, err)

	header := "age,sex,cp,trestbps,chol,fbs,restecg,thalach,exang,oldpeak,slope,ca,thal,AGE\n"
	_, err = ParseCSV(strings.NewReader(header + "999,1,3,145,233,1,0,150,0,2.3,0,0,1,63\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate CSV column "age"`)
}
