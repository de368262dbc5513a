package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearlytools/kanreflect/intern"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

const sampleFixture = `{
  "enums": [
    {"name": "Color", "values": [{"name": "Red", "value": 0}, {"name": "Green", "value": 1}]}
  ],
  "structs": [
    {"name": "Point", "size": 12, "alignment": 4, "fields": [
      {"name": "x", "offset": 0, "size": 4, "archetype": "SignedInt"},
      {"name": "color", "offset": 4, "size": 8, "archetype": "Enum", "enum_name": "Color"},
      {"name": "tag", "offset": 4, "size": 1, "archetype": "UnsignedInt"},
      {"name": "shade", "offset": 8, "size": 4, "archetype": "UnsignedInt", "condition_field": "tag", "condition_values": [1]}
    ]}
  ]
}`

func TestDecodeFixtureAndBuildRegistry(t *testing.T) {
	fx, err := decodeFixture(strings.NewReader(sampleFixture))
	require.NoError(t, err)

	r, err := buildRegistry(fx)
	require.NoError(t, err)

	e, ok := r.QueryEnum(intern.Intern("Color"))
	require.True(t, ok)
	assert.Len(t, e.Values, 2)

	s, ok := r.QueryStruct(intern.Intern("Point"))
	require.True(t, ok)
	require.Len(t, s.Fields, 4)

	colorField := s.FieldByName(intern.Intern("color"))
	require.NotNil(t, colorField)
	assert.Equal(t, kreflect.ArchetypeEnum, colorField.Archetype)
	assert.Equal(t, intern.Intern("Color"), colorField.EnumName)

	shadeField := s.FieldByName(intern.Intern("shade"))
	require.NotNil(t, shadeField)
	assert.True(t, shadeField.HasVisibilityCondition())
	assert.Equal(t, intern.Intern("tag"), shadeField.VisibilityConditionField)
	assert.Equal(t, []int64{1}, shadeField.VisibilityConditionValues)
}

func TestParseArchetypeRejectsUnknownName(t *testing.T) {
	_, err := parseArchetype("NotAnArchetype")
	assert.Error(t, err)
}

func TestBuildRegistryRejectsDuplicateStructName(t *testing.T) {
	fx := &fixture{Structs: []fixtureStruct{
		{Name: "Dup", Size: 4, Alignment: 4},
		{Name: "Dup", Size: 4, Alignment: 4},
	}}
	_, err := buildRegistry(fx)
	assert.Error(t, err)
}

func TestDumpRegistryWritesEveryStructAndEnum(t *testing.T) {
	fx, err := decodeFixture(strings.NewReader(sampleFixture))
	require.NoError(t, err)
	r, err := buildRegistry(fx)
	require.NoError(t, err)

	var buf strings.Builder
	dumpRegistry(&buf, r)

	out := buf.String()
	assert.Contains(t, out, "enum Color")
	assert.Contains(t, out, "struct Point")
	assert.Contains(t, out, "color")
	assert.Contains(t, out, "if tag in [1]")
}
