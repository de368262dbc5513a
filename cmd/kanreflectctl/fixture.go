package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/bearlytools/kanreflect/intern"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

// fixtureField is the JSON rendering of a kreflect.FieldDescr: archetype
// and every *Name are plain strings so a fixture file is hand-editable,
// in place of the interned handles the registry uses internally.
type fixtureField struct {
	Name      string `json:"name"`
	Offset    uint32 `json:"offset"`
	Size      uint32 `json:"size"`
	Archetype string `json:"archetype"`

	EnumName   string `json:"enum_name,omitempty"`
	StructName string `json:"struct_name,omitempty"`

	ItemArchetype  string `json:"item_archetype,omitempty"`
	ItemSize       uint32 `json:"item_size,omitempty"`
	ItemEnumName   string `json:"item_enum_name,omitempty"`
	ItemStructName string `json:"item_struct_name,omitempty"`
	Count          uint32 `json:"count,omitempty"`

	ConditionField  string  `json:"condition_field,omitempty"`
	ConditionValues []int64 `json:"condition_values,omitempty"`
}

type fixtureStruct struct {
	Name      string         `json:"name"`
	Size      uint32         `json:"size"`
	Alignment uint32         `json:"alignment"`
	Fields    []fixtureField `json:"fields"`
}

type fixtureEnumValue struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

type fixtureEnum struct {
	Name    string             `json:"name"`
	IsFlags bool               `json:"is_flags,omitempty"`
	Values  []fixtureEnumValue `json:"values"`
}

// fixture is the top-level JSON document kanreflectctl reads for dump
// and diff: a flat list of enums and structs, the minimal hand-editable
// stand-in for whatever build-time reflection generator would normally
// populate a Registry in a real embedding application.
type fixture struct {
	Enums   []fixtureEnum   `json:"enums,omitempty"`
	Structs []fixtureStruct `json:"structs,omitempty"`
}

var archetypeByName = func() map[string]kreflect.Archetype {
	m := make(map[string]kreflect.Archetype, 13)
	for a := kreflect.ArchetypeUnknown; a <= kreflect.ArchetypeDynamicArray; a++ {
		m[a.String()] = a
	}
	return m
}()

func parseArchetype(s string) (kreflect.Archetype, error) {
	if s == "" {
		return kreflect.ArchetypeUnknown, nil
	}
	a, ok := archetypeByName[s]
	if !ok {
		return 0, fmt.Errorf("kanreflectctl: unknown archetype %q", s)
	}
	return a, nil
}

// loadFixture decodes a fixture document from path.
func loadFixture(path string) (*fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeFixture(f)
}

func decodeFixture(r io.Reader) (*fixture, error) {
	var fx fixture
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("kanreflectctl: decode fixture: %w", err)
	}
	return &fx, nil
}

// buildRegistry populates a fresh kreflect.Registry from fx, the way a
// real embedder's generated init code would call AddEnum/AddStruct
// against descriptors produced by a build-time reflection pass.
func buildRegistry(fx *fixture) (*kreflect.Registry, error) {
	r := kreflect.New()
	r.Validate = true

	for _, fe := range fx.Enums {
		values := make([]kreflect.EnumValueDescr, len(fe.Values))
		for i, v := range fe.Values {
			values[i] = kreflect.EnumValueDescr{Name: intern.Intern(v.Name), Value: v.Value}
		}
		e := &kreflect.EnumDescr{Name: intern.Intern(fe.Name), IsFlags: fe.IsFlags, Values: values}
		if !r.AddEnum(ctxBackground(), e) {
			return nil, fmt.Errorf("kanreflectctl: duplicate enum %q in fixture", fe.Name)
		}
	}

	for _, fs := range fx.Structs {
		fields := make([]*kreflect.FieldDescr, len(fs.Fields))
		for i, ff := range fs.Fields {
			fd, err := buildField(ff)
			if err != nil {
				return nil, fmt.Errorf("kanreflectctl: struct %q: %w", fs.Name, err)
			}
			fields[i] = fd
		}
		s := &kreflect.StructDescr{Name: intern.Intern(fs.Name), Size: fs.Size, Alignment: fs.Alignment, Fields: fields}
		if !r.AddStruct(ctxBackground(), s) {
			return nil, fmt.Errorf("kanreflectctl: duplicate struct %q in fixture", fs.Name)
		}
	}

	return r, nil
}

func buildField(ff fixtureField) (*kreflect.FieldDescr, error) {
	archetype, err := parseArchetype(ff.Archetype)
	if err != nil {
		return nil, err
	}
	itemArchetype, err := parseArchetype(ff.ItemArchetype)
	if err != nil {
		return nil, err
	}

	fd := &kreflect.FieldDescr{
		Name:                      intern.Intern(ff.Name),
		Offset:                    ff.Offset,
		Size:                      ff.Size,
		Archetype:                 archetype,
		ItemArchetype:             itemArchetype,
		ItemSize:                  ff.ItemSize,
		Count:                     ff.Count,
		VisibilityConditionValues: ff.ConditionValues,
	}
	if ff.EnumName != "" {
		fd.EnumName = intern.Intern(ff.EnumName)
	}
	if ff.StructName != "" {
		fd.StructName = intern.Intern(ff.StructName)
	}
	if ff.ItemEnumName != "" {
		fd.ItemEnumName = intern.Intern(ff.ItemEnumName)
	}
	if ff.ItemStructName != "" {
		fd.ItemStructName = intern.Intern(ff.ItemStructName)
	}
	if ff.ConditionField != "" {
		fd.VisibilityConditionField = intern.Intern(ff.ConditionField)
	}
	return fd, nil
}
