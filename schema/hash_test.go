package schema

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashIgnoresFieldInsertionOrder(t *testing.T) {
	a, _ := NewField(0, "id", TypeInteger)
	b, _ := NewField(1, "name", TypeString)
	c, _ := NewField(2, "created_at", TypeDatetime)

	forward, err := NewTableSchema("users", []*FieldDefinition{a, b, c})
	require.NoError(t, err)
	reverse, err := NewTableSchema("users", []*FieldDefinition{c, b, a})
	require.NoError(t, err)

	assert.Equal(t, forward.Hash(), reverse.Hash())
}

func TestHashChangesWithShape(t *testing.T) {
	a, _ := NewField(0, "id", TypeInteger)
	base, _ := NewTableSchema("users", []*FieldDefinition{a})

	renamed, _ := NewField(0, "uid", TypeInteger)
	other, _ := NewTableSchema("users", []*FieldDefinition{renamed})
	assert.NotEqual(t, base.Hash(), other.Hash())

	retyped, _ := NewField(0, "id", TypeString)
	other, _ = NewTableSchema("users", []*FieldDefinition{retyped})
	assert.NotEqual(t, base.Hash(), other.Hash())

	elsewhere, _ := NewTableSchema("accounts", []*FieldDefinition{a})
	assert.NotEqual(t, base.Hash(), elsewhere.Hash())
}

func TestHashProjectsSyncConfig(t *testing.T) {
	a, _ := NewField(0, "id", TypeInteger)
	ts, _ := NewTableSchema("users", []*FieldDefinition{a})
	plain := ts.Hash()

	ts.SyncConfig = &SyncConfig{Where: "active = true"}
	assert.NotEqual(t, plain, ts.Hash())

	// chunk_size is not projected into the hash: it changes how rows are
	// copied, not what the mirror contains.
	withChunks := ts.Hash()
	ts.SyncConfig.ChunkSize = 50
	assert.Equal(t, withChunks, ts.Hash())
}

// Property: for any field set, hashing is invariant under permutation of
// the field list and stable across repeated calls.
func TestHashPermutationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	types := []FieldType{TypeInteger, TypeString, TypeBoolean, TypeFloat, TypeDatetime, TypeDate, TypeJSON}

	fieldsGen := gen.SliceOf(gen.Struct(reflect.TypeOf(fieldSeed{}), map[string]gopter.Gen{
		"Name":  gen.Identifier(),
		"TypeI": gen.IntRange(0, len(types)-1),
	}))

	properties.Property("permutation invariant", prop.ForAll(
		func(seeds []fieldSeed, swapA, swapB int) bool {
			fields := make([]*FieldDefinition, len(seeds))
			for i, s := range seeds {
				fields[i] = &FieldDefinition{Position: i, Name: s.Name, Type: types[s.TypeI]}
			}
			ts1, err := NewTableSchema("prop", fields)
			if err != nil {
				return false
			}

			shuffled := append([]*FieldDefinition(nil), fields...)
			if len(shuffled) > 1 {
				i := swapA % len(shuffled)
				j := swapB % len(shuffled)
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			}
			ts2, err := NewTableSchema("prop", shuffled)
			if err != nil {
				return false
			}

			return ts1.Hash() == ts2.Hash() && ts1.Hash() == ts1.Hash()
		},
		fieldsGen,
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

type fieldSeed struct {
	Name  string
	TypeI int
}
