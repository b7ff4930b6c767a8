package query_test

import (
	"testing"

	"github.com/orcabus/filemanager/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWhereEmptyFilterMatchesEverything(t *testing.T) {
	where, args, err := query.Filter{}.BuildWhere()
	require.NoError(t, err)
	assert.Equal(t, "1=1", where)
	assert.Empty(t, args)
}

func TestBuildWhereTranslatesWildcards(t *testing.T) {
	f := query.Filter{
		Columns: []query.ColumnMatch{
			{Column: query.ColumnKey, Patterns: []string{"a*b?c"}},
		},
		CaseSensitive: true,
	}
	where, args, err := f.BuildWhere()
	require.NoError(t, err)
	assert.Contains(t, where, "object_key LIKE ?")
	require.Len(t, args, 1)
	assert.Equal(t, "a%b_c", args[0])
}

func TestBuildWhereCaseInsensitiveLowercasesBothSides(t *testing.T) {
	f := query.Filter{
		Columns: []query.ColumnMatch{
			{Column: query.ColumnBucket, Patterns: []string{"*ABC*"}},
		},
	}
	where, args, err := f.BuildWhere()
	require.NoError(t, err)
	assert.Contains(t, where, "LOWER(bucket) LIKE ?")
	require.Len(t, args, 1)
	assert.Equal(t, "%abc%", args[0])
}

func TestBuildWhereEscapesLiteralWildcardCharacters(t *testing.T) {
	f := query.Filter{
		Columns: []query.ColumnMatch{
			{Column: query.ColumnKey, Patterns: []string{"100%_done"}},
		},
		CaseSensitive: true,
	}
	_, args, err := f.BuildWhere()
	require.NoError(t, err)
	assert.Equal(t, `100\%\_done`, args[0])
}

func TestBuildWhereOrsMultiplePatternsWithinOneColumn(t *testing.T) {
	f := query.Filter{
		Columns: []query.ColumnMatch{
			{Column: query.ColumnBucket, Patterns: []string{"a", "b"}},
		},
		CaseSensitive: true,
	}
	where, args, err := f.BuildWhere()
	require.NoError(t, err)
	assert.Equal(t, "(bucket LIKE ? ESCAPE '\\\\' OR bucket LIKE ? ESCAPE '\\\\')", where)
	assert.Equal(t, []any{"a", "b"}, args)
}

func TestBuildWhereAttributePathMatch(t *testing.T) {
	f := query.Filter{
		Attributes: []query.AttributeMatch{
			{Path: "attributeId", Patterns: []string{"*a*"}},
		},
		CaseSensitive: true,
	}
	where, _, err := f.BuildWhere()
	require.NoError(t, err)
	assert.Contains(t, where, "JSON_EXTRACT(attributes, '$.attributeId')")
}

func TestBuildWhereCurrentOnly(t *testing.T) {
	f := query.Filter{CurrentOnly: true}
	where, _, err := f.BuildWhere()
	require.NoError(t, err)
	assert.Contains(t, where, "is_current_state = TRUE")
}

func TestBuildWhereRejectsUnknownColumn(t *testing.T) {
	f := query.Filter{Columns: []query.ColumnMatch{{Column: "bogus", Patterns: []string{"x"}}}}
	_, _, err := f.BuildWhere()
	assert.Error(t, err)
}
