package outlook

import (
	"fmt"
	"math"

	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-artifacts/utils"
)

// Property types
const (
	PT_INT16    = 0x0002
	PT_INT32    = 0x0003
	PT_FLOAT32  = 0x0004
	PT_FLOAT64  = 0x0005
	PT_CURRENCY = 0x0006
	PT_APPTIME  = 0x0007
	PT_ERROR    = 0x000A
	PT_BOOLEAN  = 0x000B
	PT_OBJECT   = 0x000D
	PT_INT64    = 0x0014
	PT_STRING8  = 0x001E
	PT_UNICODE  = 0x001F
	PT_SYSTIME  = 0x0040
	PT_GUID     = 0x0048
	PT_BINARY   = 0x0102

	PT_MULTIPLE = 0x1000
)

// Property tags
const (
	TAG_SUBJECT                  = 0x0037
	TAG_CLIENT_SUBMIT_TIME       = 0x0039
	TAG_SENT_REPRESENTING_NAME   = 0x0042
	TAG_MESSAGE_CLASS            = 0x001A
	TAG_SENDER_NAME              = 0x0C1A
	TAG_SENDER_EMAIL_ADDRESS     = 0x0C1F
	TAG_DISPLAY_CC               = 0x0E03
	TAG_DISPLAY_TO               = 0x0E04
	TAG_MESSAGE_DELIVERY_TIME    = 0x0E06
	TAG_MESSAGE_FLAGS            = 0x0E07
	TAG_MESSAGE_SIZE             = 0x0E08
	TAG_PARENT_ENTRY_ID          = 0x0E09
	TAG_BODY                     = 0x1000
	TAG_RTF_COMPRESSED           = 0x1009
	TAG_HTML                     = 0x1013
	TAG_DISPLAY_NAME             = 0x3001
	TAG_CREATION_TIME            = 0x3007
	TAG_LAST_MODIFICATION_TIME   = 0x3008
	TAG_CONTENT_COUNT            = 0x3602
	TAG_CONTENT_UNREAD_COUNT     = 0x3603
	TAG_SUBFOLDERS               = 0x360A
	TAG_CONTAINER_CLASS          = 0x3613
	TAG_RECEIVED_BY_SMTP_ADDRESS = 0x5D07
)

var tag_names = map[uint16]string{
	TAG_SUBJECT:                  "PidTagSubject",
	TAG_CLIENT_SUBMIT_TIME:       "PidTagClientSubmitTime",
	TAG_SENT_REPRESENTING_NAME:   "PidTagSentRepresentingName",
	TAG_MESSAGE_CLASS:            "PidTagMessageClass",
	TAG_SENDER_NAME:              "PidTagSenderName",
	TAG_SENDER_EMAIL_ADDRESS:     "PidTagSenderEmailAddress",
	TAG_DISPLAY_CC:               "PidTagDisplayCc",
	TAG_DISPLAY_TO:               "PidTagDisplayTo",
	TAG_MESSAGE_DELIVERY_TIME:    "PidTagMessageDeliveryTime",
	TAG_MESSAGE_FLAGS:            "PidTagMessageFlags",
	TAG_MESSAGE_SIZE:             "PidTagMessageSize",
	TAG_PARENT_ENTRY_ID:          "PidTagParentEntryId",
	TAG_BODY:                     "PidTagBody",
	TAG_RTF_COMPRESSED:           "PidTagRtfCompressed",
	TAG_HTML:                     "PidTagHtml",
	TAG_DISPLAY_NAME:             "PidTagDisplayName",
	TAG_CREATION_TIME:            "PidTagCreationTime",
	TAG_LAST_MODIFICATION_TIME:   "PidTagLastModificationTime",
	TAG_CONTENT_COUNT:            "PidTagContentCount",
	TAG_CONTENT_UNREAD_COUNT:     "PidTagContentUnreadCount",
	TAG_SUBFOLDERS:               "PidTagSubfolders",
	TAG_CONTAINER_CLASS:          "PidTagContainerClass",
	TAG_RECEIVED_BY_SMTP_ADDRESS: "PidTagReceivedBySmtpAddress",
}

func TagName(id uint16) string {
	name, pres := tag_names[id]
	if pres {
		return name
	}
	return fmt.Sprintf("0x%04x", id)
}

// Only these are stored in the record itself, everything else is a
// HNID.
func isInline(prop_type uint16) bool {
	switch prop_type {
	case PT_INT16, PT_INT32, PT_FLOAT32, PT_ERROR, PT_BOOLEAN:
		return true
	}
	return false
}

// Size of the fixed width types. Zero for variable sized ones.
func fixedWidth(prop_type uint16) int {
	switch prop_type {
	case PT_INT16:
		return 2
	case PT_INT32, PT_FLOAT32, PT_ERROR:
		return 4
	case PT_BOOLEAN:
		return 1
	case PT_FLOAT64, PT_CURRENCY, PT_APPTIME, PT_INT64, PT_SYSTIME:
		return 8
	case PT_GUID:
		return 16
	}
	return 0
}

type Property struct {
	ID    uint16      `json:"id"`
	Name  string      `json:"name"`
	Type  uint16      `json:"type"`
	Value interface{} `json:"value"`
}

// properties decodes every property of the node. A property
// that fails to decode is logged and kept with a nil value.
func (self *OutlookReader) properties(nid uint32) ([]*Property, error) {
	node, pres := self.Nodes[nid]
	if !pres {
		return nil, utils.BadFormat("Node %#x is not in the node B-tree", nid)
	}

	blocks, err := self.ReadDataBlocks(node.DataBID)
	if err != nil {
		return nil, errors.Wrapf(err, "Node %#x", nid)
	}

	heap, err := NewHeap(blocks)
	if err != nil {
		return nil, errors.Wrapf(err, "Node %#x", nid)
	}
	if heap.ClientSig != CLIENT_SIG_PROPERTY_CONTEXT {
		return nil, utils.BadFormat("Node %#x heap client %#x is not a property context",
			nid, heap.ClientSig)
	}

	records, err := heap.BTHRecords(heap.UserRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "Node %#x", nid)
	}

	var subnodes map[uint32]*Subnode

	result := []*Property{}
	for _, record := range records {
		if len(record.Key) < 2 || len(record.Data) < 6 {
			utils.STATS.Inc_RecordsSkipped()
			continue
		}

		id, _ := utils.GetU16LE(record.Key, 0)
		prop_type, _ := utils.GetU16LE(record.Data, 0)
		value, _ := utils.GetU32LE(record.Data, 2)

		prop := &Property{
			ID:   id,
			Name: TagName(id),
			Type: prop_type,
		}
		result = append(result, prop)

		if isInline(prop_type) {
			prop.Value = decodeInline(prop_type, value)
			continue
		}

		var data []byte
		if IsHID(value) {
			data, err = heap.Get(value)
		} else {
			// Loaded once per node, most nodes have no subnodes.
			if subnodes == nil {
				subnodes, err = self.Subnodes(node.SubnodeBID)
				if err != nil {
					subnodes = make(map[uint32]*Subnode)
					self.logPropertyError(nid, prop, err)
				}
			}
			data, err = self.subnodeData(subnodes, value)
		}
		if err != nil {
			self.logPropertyError(nid, prop, err)
			continue
		}

		prop.Value, err = decodeProperty(prop_type, data)
		if err != nil {
			self.logPropertyError(nid, prop, err)
		}
	}

	return result, nil
}

func (self *OutlookReader) logPropertyError(nid uint32, prop *Property, err error) {
	utils.DebugPrint("Node %#x property %v: %v\n", nid, prop.Name, err)
	utils.STATS.Inc_RecordsSkipped()
}

func (self *OutlookReader) subnodeData(
	subnodes map[uint32]*Subnode, nid uint32) ([]byte, error) {
	subnode, pres := subnodes[nid]
	if !pres {
		return nil, utils.BadFormat("Subnode %#x not found", nid)
	}
	return self.ReadData(subnode.DataBID)
}

// PropertyContext returns the properties of a node keyed by tag name
// in tag order.
func (self *OutlookReader) PropertyContext(nid uint32) (*ordereddict.Dict, error) {
	props, err := self.properties(nid)
	if err != nil {
		return nil, err
	}

	result := ordereddict.NewDict()
	for _, prop := range props {
		result.Set(prop.Name, prop.Value)
	}
	return result, nil
}

func decodeInline(prop_type uint16, value uint32) interface{} {
	switch prop_type {
	case PT_INT16:
		return int16(value)
	case PT_INT32:
		return int32(value)
	case PT_FLOAT32:
		return math.Float32frombits(value)
	case PT_ERROR:
		return value
	case PT_BOOLEAN:
		return value&0xff != 0
	}
	return value
}

func decodeProperty(prop_type uint16, data []byte) (interface{}, error) {
	if prop_type&PT_MULTIPLE != 0 {
		return decodeMultiple(prop_type&^PT_MULTIPLE, data)
	}

	width := fixedWidth(prop_type)
	if width > 0 && len(data) < width {
		return nil, utils.Incomplete("Property type %#x needs %d bytes, have %d",
			prop_type, width, len(data))
	}

	switch prop_type {
	case PT_INT16:
		v, _ := utils.GetU16LE(data, 0)
		return int16(v), nil
	case PT_INT32:
		v, _ := utils.GetU32LE(data, 0)
		return int32(v), nil
	case PT_FLOAT32:
		v, _ := utils.GetU32LE(data, 0)
		return math.Float32frombits(v), nil
	case PT_ERROR:
		v, _ := utils.GetU32LE(data, 0)
		return v, nil
	case PT_BOOLEAN:
		return data[0] != 0, nil
	case PT_FLOAT64, PT_APPTIME:
		v, _ := utils.GetU64LE(data, 0)
		return math.Float64frombits(v), nil
	case PT_CURRENCY, PT_INT64:
		v, _ := utils.GetU64LE(data, 0)
		return int64(v), nil
	case PT_SYSTIME:
		v, _ := utils.GetU64LE(data, 0)
		return utils.FiletimeToISO(v), nil
	case PT_GUID:
		return utils.FormatGUIDLE(data), nil
	case PT_STRING8:
		return utils.ExtractANSIString(data), nil
	case PT_UNICODE:
		return utils.ExtractUTF16String(data), nil
	case PT_BINARY, PT_OBJECT:
		return utils.Base64Encode(data), nil
	}

	utils.DebugPrint("Unknown property type %#x\n", prop_type)
	return utils.Base64Encode(data), nil
}

// Fixed width values are packed back to back. Variable sized ones
// start with a count and a table of offsets.
func decodeMultiple(prop_type uint16, data []byte) (interface{}, error) {
	result := []interface{}{}

	width := fixedWidth(prop_type)
	if width > 0 {
		for offset := 0; offset+width <= len(data); offset += width {
			value, err := decodeProperty(prop_type, data[offset:offset+width])
			if err != nil {
				return nil, err
			}
			result = append(result, value)
		}
		return result, nil
	}

	count, err := utils.GetU32LE(data, 0)
	if err != nil {
		return nil, err
	}
	if int64(count)*4+4 > int64(len(data)) {
		return nil, utils.BadFormat("Multi value count %d too large", count)
	}

	offsets := make([]int64, 0, count+1)
	for i := uint32(0); i < count; i++ {
		offset, _ := utils.GetU32LE(data, int64(4+i*4))
		offsets = append(offsets, int64(offset))
	}
	offsets = append(offsets, int64(len(data)))

	for i := 0; i < int(count); i++ {
		start, end := offsets[i], offsets[i+1]
		if end < start {
			return nil, utils.BadFormat("Multi value item %d ends before it starts", i)
		}
		item, err := utils.Slice(data, start, end-start)
		if err != nil {
			return nil, err
		}
		value, err := decodeProperty(prop_type, item)
		if err != nil {
			return nil, err
		}
		result = append(result, value)
	}

	return result, nil
}
