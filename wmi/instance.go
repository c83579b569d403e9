package wmi

import (
	"sort"

	"github.com/Velocidex/ordereddict"
	"github.com/apex/log"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	instance_hash_size     = 128
	instance_min_hash_name = 10

	// Marks an instance carrying dynamic property blocks.
	dynamic_props_present = 2

	instance_value_size_mask = 0x7FFFFFFF
)

type InstanceRecord struct {
	HashName        string
	Filetime        uint64
	Filetime2       uint64
	ClassNameOffset uint32
	Data            []byte
}

// ParseInstance decodes an instance record. Records whose leading
// hash is too short to be a class hash are not instances.
func ParseInstance(data []byte) (*InstanceRecord, error) {
	cursor := utils.NewCursor(data)

	hash_data, err := cursor.Take(instance_hash_size)
	if err != nil {
		return nil, err
	}

	result := &InstanceRecord{
		HashName: utils.ExtractUTF16String(hash_data),
	}
	if len(result.HashName) < instance_min_hash_name {
		return nil, utils.BadFormat("Not an instance record: hash %q",
			result.HashName)
	}

	result.Filetime, err = cursor.U64LE()
	if err != nil {
		return nil, err
	}
	result.Filetime2, err = cursor.U64LE()
	if err != nil {
		return nil, err
	}

	block_size, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}
	if block_size < 4 {
		return nil, utils.BadFormat("Instance block size %d too small", block_size)
	}

	block_data, err := cursor.Take(int(block_size - 4))
	if err != nil {
		return nil, errors.Wrap(err, "Instance block")
	}

	block := utils.NewCursor(block_data)
	result.ClassNameOffset, err = block.U32LE()
	if err != nil {
		return nil, err
	}
	_, err = block.U8()
	if err != nil {
		return nil, err
	}
	result.Data = block.Remaining()

	return result, nil
}

// Classes keyed by their class hash.
type ClassMap map[string]*ClassInfo

type ClassValues struct {
	ClassName      string            `json:"class_name"`
	ClassHash      string            `json:"class_hash"`
	SuperClassName string            `json:"super_class_name"`
	Values         *ordereddict.Dict `json:"values"`
}

func (self *ClassValues) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("class_name", self.ClassName).
		Set("class_hash", self.ClassHash).
		Set("super_class_name", self.SuperClassName).
		Set("values", self.Values)
}

// PropDataSize is the size of the inline property region: the end of
// the furthest property slot.
func PropDataSize(props []*Property) uint32 {
	total := uint32(0)
	for _, prop := range props {
		end := prop.DataOffset + prop.Type.Width()
		if end > total {
			total = end
		}
	}
	return total
}

// ParseInstances joins each instance with the class its hash names.
// Superclass properties are merged into a class from lookup the
// first time an instance of it is decoded. Classes whose instances
// fail to decode are not tried again.
func ParseInstances(classes []ClassMap, instances []*InstanceRecord,
	lookup []ClassMap) []*ClassValues {
	result := []*ClassValues{}
	empty_instances := make(map[string]bool)

	for _, instance := range instances {
		if empty_instances[instance.HashName] {
			continue
		}

		found := false
		for _, class_map := range classes {
			class, pres := class_map[instance.HashName]
			if !pres {
				continue
			}
			found = true

			class.mergeParentProperties(lookup)
			value, err := class.decodeInstance(instance)
			if err != nil {
				log.WithError(err).WithField("class", class.ClassName).
					Warn("[wmi] Could not grab instance data for class")
				utils.STATS.Inc_RecordsSkipped()
				empty_instances[instance.HashName] = true
				continue
			}

			result = append(result, value)
			break
		}

		if !found {
			utils.DebugPrint("No class for instance %v\n", instance.HashName)
			empty_instances[instance.HashName] = true
		}
	}

	return result
}

func (self *ClassInfo) mergeParentProperties(lookup []ClassMap) {
	if self.SuperClassName == "" || self.IncludesParentProps {
		return
	}

	parent_hash := HashName(self.SuperClassName)
	for _, class_map := range lookup {
		parent, pres := class_map[parent_hash]
		if !pres {
			continue
		}

		for _, prop := range parent.Properties {
			if !self.hasProperty(prop.Name) {
				self.Properties = append(self.Properties, prop)
			}
		}
		self.IncludesParentProps = true
	}
}

func (self *ClassInfo) decodeInstance(instance *InstanceRecord) (*ClassValues, error) {
	cursor := utils.NewCursor(instance.Data)

	// Two bits per property, rounded up to whole bytes.
	bits := len(self.Properties) * 2
	bits = ((bits + 7) >> 3) << 3
	err := cursor.Skip(bits / 8)
	if err != nil {
		return nil, errors.Wrap(err, "Instance property bitmap")
	}

	prop_data, err := cursor.Take(int(PropDataSize(self.Properties)))
	if err != nil {
		return nil, errors.Wrap(err, "Instance property data")
	}

	qual_size, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}

	// Sometimes padded.
	if qual_size < 4 {
		qual_size, err = cursor.U32LE()
		if err != nil {
			return nil, err
		}
		if qual_size < 4 {
			return nil, utils.BadFormat("Instance qualifier size %d too small",
				qual_size)
		}
	}

	qual_data, err := cursor.Take(int(qual_size - 4))
	if err != nil {
		return nil, errors.Wrap(err, "Instance qualifiers")
	}
	_, err = parseQualifiers(qual_data, cursor.Remaining())
	if err != nil {
		utils.DebugPrint("Instance qualifiers for %v: %v\n", self.ClassName, err)
	}

	dynamic, err := cursor.U8()
	if err != nil {
		return nil, err
	}
	if dynamic == dynamic_props_present {
		err = skipDynamicProperties(cursor)
		if err != nil {
			return nil, errors.Wrap(err, "Instance dynamic properties")
		}
	}

	values_size, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}
	value_data, err := cursor.Take(int(values_size & instance_value_size_mask))
	if err != nil {
		return nil, errors.Wrap(err, "Instance value data")
	}

	// Embedded objects need the class named in the property
	// qualifiers, which is not resolved here.
	names := []string{}
	values := make(map[string]interface{})
	for _, prop := range self.Properties {
		if prop.Type.isObject() {
			continue
		}

		names = append(names, prop.Name)

		start := utils.NewCursor(prop_data)
		if start.Seek(int(prop.DataOffset)) != nil {
			values[prop.Name] = nil
			continue
		}

		value, err := extractCimData(prop.Type, start, value_data)
		if err != nil {
			value = nil
		}
		values[prop.Name] = value
	}

	sort.Strings(names)
	result := ordereddict.NewDict()
	for _, name := range names {
		result.Set(name, values[name])
	}

	return &ClassValues{
		ClassName:      self.ClassName,
		ClassHash:      self.ClassHash,
		SuperClassName: self.SuperClassName,
		Values:         result,
	}, nil
}

func skipDynamicProperties(cursor *utils.Cursor) error {
	count, err := cursor.U32LE()
	if err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		size, err := cursor.U32LE()
		if err != nil {
			return err
		}
		if size < 4 {
			return utils.BadFormat("Dynamic property size %d too small", size)
		}
		err = cursor.Skip(int(size - 4))
		if err != nil {
			return err
		}
	}
	return nil
}
