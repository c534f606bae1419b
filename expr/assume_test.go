package expr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssume(t *testing.T) {
	region := Field("region")
	year := Field("year")
	value := Field("value")

	cases := []struct {
		name     string
		expr     Expression
		given    Expression
		expected Expression
	}{
		{
			name:     "nil partition leaves filter unchanged",
			expr:     Eq(region, String("west")),
			given:    nil,
			expected: Eq(region, String("west")),
		},
		{
			name:     "matching equality folds to true",
			expr:     Eq(region, String("west")),
			given:    Eq(region, String("west")),
			expected: True(),
		},
		{
			name:     "conflicting equality folds to false",
			expr:     Eq(region, String("west")),
			given:    Eq(region, String("east")),
			expected: False(),
		},
		{
			name:     "literal on the left",
			expr:     Eq(String("west"), region),
			given:    Eq(region, String("west")),
			expected: True(),
		},
		{
			name:     "unrelated field is untouched",
			expr:     Greater(value, Int(10)),
			given:    Eq(region, String("west")),
			expected: Greater(value, Int(10)),
		},
		{
			name:     "conjunction drops satisfied operands",
			expr:     And(Eq(region, String("west")), Greater(value, Int(10))),
			given:    And(Eq(region, String("west")), Eq(year, Int(2020))),
			expected: Greater(value, Int(10)),
		},
		{
			name:     "conjunction with unsatisfiable operand",
			expr:     And(Eq(region, String("west")), Greater(value, Int(10))),
			given:    Eq(region, String("east")),
			expected: False(),
		},
		{
			name:     "disjunction with satisfied operand",
			expr:     Or(Eq(region, String("west")), Greater(value, Int(10))),
			given:    Eq(region, String("west")),
			expected: True(),
		},
		{
			name:     "disjunction drops unsatisfiable operands",
			expr:     Or(Eq(region, String("west")), Greater(value, Int(10))),
			given:    Eq(region, String("east")),
			expected: Greater(value, Int(10)),
		},
		{
			name:     "range containment",
			expr:     Greater(year, Int(2000)),
			given:    Eq(year, Int(2020)),
			expected: True(),
		},
		{
			name:     "range disjoint",
			expr:     Less(year, Int(2000)),
			given:    GreaterEq(year, Int(2000)),
			expected: False(),
		},
		{
			name:     "range overlap is undecided",
			expr:     Less(year, Int(2010)),
			given:    GreaterEq(year, Int(2000)),
			expected: Less(year, Int(2010)),
		},
		{
			name:     "range subset with exclusive bounds",
			expr:     GreaterEq(year, Int(2000)),
			given:    Greater(year, Int(2000)),
			expected: True(),
		},
		{
			name:     "inclusive bound is not a subset of exclusive",
			expr:     Greater(year, Int(2000)),
			given:    GreaterEq(year, Int(2000)),
			expected: Greater(year, Int(2000)),
		},
		{
			name:     "touching exclusive bounds are disjoint",
			expr:     LessEq(year, Int(2000)),
			given:    Greater(year, Int(2000)),
			expected: False(),
		},
		{
			name:     "mixed int and float",
			expr:     Less(year, Float(2020.5)),
			given:    Eq(year, Int(2020)),
			expected: True(),
		},
		{
			name:     "not equal given excludes equality",
			expr:     Eq(region, String("west")),
			given:    NotEq(region, String("west")),
			expected: False(),
		},
		{
			name:     "not equal target outside of known range",
			expr:     NotEq(year, Int(1999)),
			given:    Greater(year, Int(2000)),
			expected: True(),
		},
		{
			name:     "not equal target on known point",
			expr:     NotEq(region, String("west")),
			given:    Eq(region, String("west")),
			expected: False(),
		},
		{
			name:     "incomparable types are undecided",
			expr:     Eq(year, String("2020")),
			given:    Eq(year, Int(2020)),
			expected: Eq(year, String("2020")),
		},
		{
			name:     "negation is folded",
			expr:     Not(Eq(region, String("west"))),
			given:    Eq(region, String("east")),
			expected: True(),
		},
		{
			name:     "disjunctive given carries no facts",
			expr:     Eq(region, String("west")),
			given:    Or(Eq(region, String("west")), Eq(region, String("east"))),
			expected: Eq(region, String("west")),
		},
		{
			name:     "literal comparison is folded",
			expr:     Less(Int(1), Int(2)),
			given:    nil,
			expected: True(),
		},
		{
			name:     "null literal comparison is null",
			expr:     Eq(Null(), Int(2)),
			given:    nil,
			expected: Null(),
		},
		{
			name:     "NaN binding does not decide equality",
			expr:     Eq(value, Int(7)),
			given:    Eq(value, Float(math.NaN())),
			expected: Eq(value, Int(7)),
		},
		{
			name:     "NaN binding does not decide ranges",
			expr:     And(GreaterEq(value, Int(7)), LessEq(value, Int(7))),
			given:    Eq(value, Float(math.NaN())),
			expected: And(GreaterEq(value, Int(7)), LessEq(value, Int(7))),
		},
		{
			name:     "NaN bound does not decide ranges",
			expr:     Less(value, Int(7)),
			given:    Greater(value, Float(math.NaN())),
			expected: Less(value, Int(7)),
		},
		{
			name:     "NaN literals are never equal",
			expr:     Eq(Float(math.NaN()), Float(math.NaN())),
			given:    nil,
			expected: False(),
		},
		{
			name:     "NaN literal is not equal to a number",
			expr:     NotEq(Float(math.NaN()), Int(1)),
			given:    nil,
			expected: True(),
		},
		{
			name:     "NaN literal is unordered",
			expr:     LessEq(Float(math.NaN()), Int(1)),
			given:    nil,
			expected: False(),
		},
	}

	for _, tcase := range cases {
		t.Run(tcase.name, func(t *testing.T) {
			actual := tcase.expr.Assume(tcase.given)
			require.True(t, tcase.expected.Equal(actual), "expected %s, got %s", tcase.expected, actual)
		})
	}
}

func TestAssumeIsIdempotent(t *testing.T) {
	filter := And(Eq(Field("region"), String("west")), Greater(Field("value"), Int(10)))
	partition := Eq(Field("region"), String("west"))

	once := filter.Assume(partition)
	twice := once.Assume(partition)
	require.True(t, once.Equal(twice))
}

func TestKeyValues(t *testing.T) {
	partition := And(
		Eq(Field("region"), String("west")),
		Eq(Int(2020), Field("year")),
		Greater(Field("day"), Int(3)),
		Eq(Field("host"), Null()),
	)
	kv := KeyValues(partition)
	require.Len(t, kv, 2)
	require.Equal(t, "west", kv["region"].Value)
	require.Equal(t, int64(2020), kv["year"].Value)

	require.Empty(t, KeyValues(nil))
}

func TestFields(t *testing.T) {
	e := Or(And(Eq(Field("b"), Int(1)), Not(Eq(Field("a"), Field("c")))), Less(Field("b"), Int(0)))
	require.Equal(t, []string{"a", "b", "c"}, Fields(e))
}

func TestString(t *testing.T) {
	e := And(Eq(Field("region"), String("west")), Greater(Field("value"), Float(1.5)), Not(Field("ok")))
	require.Equal(t, `((region == "west") and (value > 1.5) and not ok)`, e.String())
}

func TestNewLiteral(t *testing.T) {
	l, err := NewLiteral(int32(7))
	require.NoError(t, err)
	require.Equal(t, int64(7), l.Value)

	l, err = NewLiteral(uint64(1) << 63)
	require.NoError(t, err)
	require.IsType(t, float64(0), l.Value)

	_, err = NewLiteral([]byte("x"))
	require.Error(t, err)
}

func TestCompareValuesNaN(t *testing.T) {
	_, ok := CompareValues(math.NaN(), 1.0)
	require.False(t, ok)
	_, ok = CompareValues(int64(1), math.NaN())
	require.False(t, ok)

	matches, ok := MatchValues(OpNotEqual, math.NaN(), math.NaN())
	require.True(t, ok)
	require.True(t, matches)
	_, ok = MatchValues(OpEqual, math.NaN(), "x")
	require.False(t, ok)
}
