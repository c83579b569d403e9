package wmi

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	// Name offsets with the high bit set index the builtin names.
	predefined_name_flag = 0x80000000

	// The value data size always has the high bit set.
	value_size_flag = 0x80000000

	qualifier_min_size = 13
	property_ref_size  = 8
)

var predefined_names = map[uint32]string{
	1:  "key",
	3:  "read",
	4:  "write",
	5:  "volatile",
	6:  "provider",
	7:  "dynamic",
	10: "type",
}

func predefinedName(index uint32) string {
	name, pres := predefined_names[index]
	if pres {
		return name
	}
	return "unknown"
}

// HashName gives the key the repository indexes a class under: the
// SHA256 of the upper cased UTF16 name in upper case hex.
func HashName(name string) string {
	encoded := utf16.Encode([]rune(strings.ToUpper(name)))
	buf := make([]byte, 0, len(encoded)*2)
	for _, c := range encoded {
		buf = binary.LittleEndian.AppendUint16(buf, c)
	}
	return fmt.Sprintf("%X", sha256.Sum256(buf))
}

type Qualifier struct {
	Name  string      `json:"name"`
	Type  CimType     `json:"type"`
	Value interface{} `json:"value"`
}

type Property struct {
	Name       string       `json:"name"`
	Type       CimType      `json:"type"`
	Index      uint16       `json:"index"`
	DataOffset uint32       `json:"data_offset"`
	ClassLevel uint32       `json:"class_level"`
	Qualifiers []*Qualifier `json:"qualifiers"`
}

type ClassInfo struct {
	ClassName      string       `json:"class_name"`
	ClassHash      string       `json:"class_hash"`
	SuperClassName string       `json:"super_class_name"`
	Qualifiers     []*Qualifier `json:"qualifiers"`
	Properties     []*Property  `json:"properties"`

	// Set once the superclass properties have been merged in.
	IncludesParentProps bool `json:"includes_parent_props"`
}

func (self *ClassInfo) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("class_name", self.ClassName).
		Set("class_hash", self.ClassHash).
		Set("super_class_name", self.SuperClassName).
		Set("qualifiers", self.Qualifiers).
		Set("properties", self.Properties)
}

// Copy gives an independent class so the properties can be extended
// without touching the original.
func (self *ClassInfo) Copy() *ClassInfo {
	result := *self
	result.Properties = append([]*Property{}, self.Properties...)
	return &result
}

func (self *ClassInfo) hasProperty(name string) bool {
	for _, prop := range self.Properties {
		if prop.Name == name {
			return true
		}
	}
	return false
}

// ParseClass decodes a class definition.
func ParseClass(data []byte) (*ClassInfo, error) {
	cursor := utils.NewCursor(data)

	_, err := cursor.U8()
	if err != nil {
		return nil, err
	}

	fields := make([]uint32, 3)
	for i := range fields {
		fields[i], err = cursor.U32LE()
		if err != nil {
			return nil, err
		}
	}
	class_name_offset, default_size, super_size := fields[0], fields[1], fields[2]

	// Sizes include the size field itself.
	if super_size < 4 {
		return nil, utils.BadFormat("Super class name size %d too small", super_size)
	}
	super_data, err := cursor.Take(int(super_size - 4))
	if err != nil {
		return nil, errors.Wrap(err, "Super class name")
	}

	qual_size, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}
	if qual_size < 4 {
		return nil, utils.BadFormat("Class qualifier size %d too small", qual_size)
	}
	qual_data, err := cursor.Take(int(qual_size - 4))
	if err != nil {
		return nil, errors.Wrap(err, "Class qualifiers")
	}

	number_props, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}
	prop_data, err := cursor.Take(int(number_props) * property_ref_size)
	if err != nil {
		return nil, errors.Wrap(err, "Class properties")
	}

	// Default values
	err = cursor.Skip(int(default_size))
	if err != nil {
		return nil, errors.Wrap(err, "Class default values")
	}

	value_size, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}
	if value_size&value_size_flag == 0 {
		return nil, utils.BadFormat("Class value size %#x does not have the high bit set",
			value_size)
	}
	value_data, err := cursor.Take(int(value_size &^ value_size_flag))
	if err != nil {
		return nil, errors.Wrap(err, "Class value data")
	}

	class_name, err := cimString(value_data, class_name_offset)
	if err != nil {
		return nil, errors.Wrap(err, "Class name")
	}

	result := &ClassInfo{
		ClassName: class_name,
		ClassHash: HashName(class_name),
	}

	if len(super_data) > 0 {
		result.SuperClassName, err = cimString(super_data, 0)
		if err != nil {
			return nil, errors.Wrap(err, "Super class name")
		}
	}

	result.Qualifiers, err = parseQualifiers(qual_data, value_data)
	if err != nil {
		return nil, errors.Wrapf(err, "Class %v qualifiers", class_name)
	}

	result.Properties, err = parseProperties(prop_data, value_data)
	if err != nil {
		return nil, errors.Wrapf(err, "Class %v properties", class_name)
	}

	return result, nil
}

func memberName(offset uint32, value_data []byte) (string, error) {
	if offset&predefined_name_flag != 0 {
		return predefinedName(offset &^ predefined_name_flag), nil
	}
	return cimString(value_data, offset)
}

func parseQualifiers(data []byte, value_data []byte) ([]*Qualifier, error) {
	result := []*Qualifier{}
	cursor := utils.NewCursor(data)

	for cursor.Len() >= qualifier_min_size {
		name_offset, _ := cursor.U32LE()
		_ = cursor.Skip(1)
		cim_type, _ := cursor.U32LE()

		name, err := memberName(name_offset, value_data)
		if err != nil {
			return result, err
		}

		value, err := extractCimData(CimType(cim_type), cursor, value_data)
		if err != nil {
			return result, errors.Wrapf(err, "Qualifier %v", name)
		}

		result = append(result, &Qualifier{
			Name:  name,
			Type:  CimType(cim_type),
			Value: value,
		})
	}

	return result, nil
}

func parseProperties(data []byte, value_data []byte) ([]*Property, error) {
	result := []*Property{}
	cursor := utils.NewCursor(data)

	for cursor.Len() >= property_ref_size {
		name_offset, _ := cursor.U32LE()
		definition_offset, _ := cursor.U32LE()

		name, err := memberName(name_offset, value_data)
		if err != nil {
			return result, err
		}

		definition, err := utils.Slice(value_data, int64(definition_offset),
			int64(len(value_data))-int64(definition_offset))
		if err != nil {
			return result, errors.Wrapf(err, "Property %v definition", name)
		}

		// type, index, data offset, class level, qualifier size
		def := utils.NewCursor(definition)
		cim_type, _ := def.U32LE()
		index, _ := def.U16LE()
		data_offset, _ := def.U32LE()
		class_level, _ := def.U32LE()
		qual_size, err := def.U32LE()
		if err != nil {
			return result, errors.Wrapf(err, "Property %v definition", name)
		}

		prop := &Property{
			Name:       name,
			Type:       CimType(cim_type),
			Index:      index,
			DataOffset: data_offset,
			ClassLevel: class_level,
			Qualifiers: []*Qualifier{},
		}

		if qual_size > 4 {
			qual_data, err := def.Take(int(qual_size - 4))
			if err != nil {
				return result, errors.Wrapf(err, "Property %v qualifiers", name)
			}
			prop.Qualifiers, err = parseQualifiers(qual_data, value_data)
			if err != nil {
				return result, errors.Wrapf(err, "Property %v qualifiers", name)
			}
		}

		result = append(result, prop)
	}

	return result, nil
}

// ParseClassRecord decodes a class definition record as stored in
// the objects file.
func ParseClassRecord(data []byte) (*ClassInfo, error) {
	cursor := utils.NewCursor(data)

	// UTF16 characters
	name_size, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}

	// A name larger than the record means this is an instance block.
	if int64(name_size)*2 > int64(cursor.Len()) {
		return nil, utils.BadFormat("Class record name size %d too large", name_size)
	}
	_ = cursor.Skip(int(name_size) * 2)

	// Created timestamp
	_, err = cursor.U64LE()
	if err != nil {
		return nil, err
	}

	class_size, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}
	if class_size < 4 {
		return nil, utils.BadFormat("Class record size %d too small", class_size)
	}

	class_data, err := cursor.Take(int(class_size - 4))
	if err != nil {
		return nil, errors.Wrap(err, "Class record")
	}

	// Any method data following the class is not decoded.
	return ParseClass(class_data)
}
