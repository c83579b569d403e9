package outlook

import (
	"sort"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/apex/log"
	"www.velocidex.com/golang/go-artifacts/compression"
	"www.velocidex.com/golang/go-artifacts/utils"
)

const (
	DefaultMaxFolderDepth = 64

	// rgbFlags and the provider uid come before the node id.
	entry_id_nid_offset = 20
)

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].NID < nodes[j].NID
	})
}

type Folder struct {
	NID            uint32 `json:"nid"`
	ParentNID      uint32 `json:"parent_nid"`
	Name           string `json:"name"`
	Path           string `json:"path"`
	SubfolderCount int64  `json:"subfolder_count"`
	MessageCount   int64  `json:"message_count"`
	Created        string `json:"created"`
	Modified       string `json:"modified"`
}

func (self *Folder) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("nid", self.NID).
		Set("name", self.Name).
		Set("path", self.Path).
		Set("subfolder_count", self.SubfolderCount).
		Set("message_count", self.MessageCount).
		Set("created", self.Created).
		Set("modified", self.Modified)
}

func findProperty(props []*Property, id uint16) (interface{}, bool) {
	for _, prop := range props {
		if prop.ID == id && prop.Value != nil {
			return prop.Value, true
		}
	}
	return nil, false
}

func propertyString(props []*Property, id uint16) string {
	value, pres := findProperty(props, id)
	if !pres {
		return ""
	}
	result, _ := value.(string)
	return result
}

func propertyInt(props []*Property, id uint16) int64 {
	value, _ := findProperty(props, id)
	switch t := value.(type) {
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	}
	return 0
}

// The parent entry id is a binary EntryID holding the parent's node
// id.
func parentFromEntryID(props []*Property) uint32 {
	encoded := propertyString(props, TAG_PARENT_ENTRY_ID)
	if encoded == "" {
		return 0
	}
	data, err := utils.Base64Decode(encoded)
	if err != nil {
		return 0
	}
	nid, _ := utils.GetU32LE(data, entry_id_nid_offset)
	return nid
}

// FolderTree decodes every normal folder and resolves its path
// through the parent links. Folders that fail to decode are logged
// and skipped.
func (self *OutlookReader) FolderTree() []*Folder {
	by_nid := make(map[uint32]*Folder)
	result := []*Folder{}

	for _, node := range self.NodesOfType(NID_TYPE_NORMAL_FOLDER) {
		props, err := self.properties(node.NID)
		if err != nil {
			log.WithError(err).WithField("nid", node.NID).
				Warn("[outlook] Could not read folder")
			utils.STATS.Inc_RecordsSkipped()
			continue
		}

		folder := &Folder{
			NID:          node.NID,
			ParentNID:    node.ParentNID,
			Name:         propertyString(props, TAG_DISPLAY_NAME),
			MessageCount: propertyInt(props, TAG_CONTENT_COUNT),
			Created:      propertyString(props, TAG_CREATION_TIME),
			Modified:     propertyString(props, TAG_LAST_MODIFICATION_TIME),
		}
		if folder.ParentNID == 0 {
			folder.ParentNID = parentFromEntryID(props)
		}

		by_nid[folder.NID] = folder
		result = append(result, folder)
	}

	for _, folder := range result {
		if folder.ParentNID != folder.NID {
			parent, pres := by_nid[folder.ParentNID]
			if pres {
				parent.SubfolderCount++
			}
		}
		folder.Path = folderPath(folder, by_nid)
	}

	return result
}

// The root folder is its own parent. A folder whose parent is missing
// is placed under $Orphan and one that loops under $Cycle.
func folderPath(folder *Folder, by_nid map[uint32]*Folder) string {
	components := []string{}
	seen := make(map[uint32]bool)
	prefix := ""

	current := folder
	for depth := 0; ; depth++ {
		if current.Name != "" {
			components = append(components, current.Name)
		}
		seen[current.NID] = true

		if current.ParentNID == current.NID {
			break
		}

		if depth >= DefaultMaxFolderDepth {
			prefix = "$Cycle"
			utils.STATS.Inc_UnresolvedPaths()
			break
		}

		parent, pres := by_nid[current.ParentNID]
		if !pres {
			prefix = "$Orphan"
			utils.STATS.Inc_UnresolvedPaths()
			break
		}

		if seen[parent.NID] {
			err := utils.CycleDetected("Folder %#x parent chain revisits %#x",
				folder.NID, parent.NID)
			log.WithError(err).Warn("[outlook] Folder cycle")
			prefix = "$Cycle"
			break
		}
		current = parent
	}

	if prefix != "" {
		components = append(components, prefix)
	}

	// Collected leaf first.
	for i, j := 0, len(components)-1; i < j; i, j = i+1, j-1 {
		components[i], components[j] = components[j], components[i]
	}
	return "/" + strings.Join(components, "/")
}

type Message struct {
	NID        uint32            `json:"nid"`
	FolderNID  uint32            `json:"folder_nid"`
	Folder     string            `json:"folder"`
	Subject    string            `json:"subject"`
	From       string            `json:"from"`
	To         string            `json:"to"`
	Delivered  string            `json:"delivered"`
	Body       string            `json:"body"`
	Properties *ordereddict.Dict `json:"properties"`
}

func (self *Message) ToDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("nid", self.NID).
		Set("folder", self.Folder).
		Set("subject", self.Subject).
		Set("from", self.From).
		Set("to", self.To).
		Set("delivered", self.Delivered).
		Set("body", self.Body).
		Set("properties", self.Properties)
}

// Subjects may start with a 0x01 marker and a prefix length.
func cleanSubject(subject string) string {
	runes := []rune(subject)
	if len(runes) >= 2 && runes[0] == 0x01 {
		return string(runes[2:])
	}
	return subject
}

// Messages calls cb with every message in the file, in node id order.
// Messages that fail to decode are logged and skipped.
func (self *OutlookReader) Messages(folders []*Folder, cb func(message *Message)) {
	folder_paths := make(map[uint32]string)
	for _, folder := range folders {
		folder_paths[folder.NID] = folder.Path
	}

	for _, node := range self.NodesOfType(NID_TYPE_NORMAL_MESSAGE) {
		message, err := self.Message(node)
		if err != nil {
			log.WithError(err).WithField("nid", node.NID).
				Warn("[outlook] Could not read message")
			utils.STATS.Inc_RecordsSkipped()
			continue
		}
		message.Folder = folder_paths[message.FolderNID]
		cb(message)
	}
}

func (self *OutlookReader) Message(node *Node) (*Message, error) {
	props, err := self.properties(node.NID)
	if err != nil {
		return nil, err
	}

	result := &Message{
		NID:        node.NID,
		FolderNID:  node.ParentNID,
		Properties: ordereddict.NewDict(),
	}

	for _, prop := range props {
		switch prop.ID {
		case TAG_SUBJECT:
			result.Subject = cleanSubject(propertyString(props, TAG_SUBJECT))
		case TAG_SENDER_EMAIL_ADDRESS:
			result.From = propertyString(props, TAG_SENDER_EMAIL_ADDRESS)
		case TAG_DISPLAY_TO:
			if result.To == "" {
				result.To = propertyString(props, TAG_DISPLAY_TO)
			}
			result.Properties.Set(prop.Name, prop.Value)
		case TAG_RECEIVED_BY_SMTP_ADDRESS:
			result.To = propertyString(props, TAG_RECEIVED_BY_SMTP_ADDRESS)
		case TAG_MESSAGE_DELIVERY_TIME:
			result.Delivered = propertyString(props, TAG_MESSAGE_DELIVERY_TIME)
		case TAG_BODY, TAG_HTML, TAG_RTF_COMPRESSED:
		default:
			result.Properties.Set(prop.Name, prop.Value)
		}
	}

	result.Body = messageBody(node.NID, props)
	return result, nil
}

// Prefer the plain text body, then HTML, then the compressed RTF.
// Bodies that can not be decoded are returned base64 encoded.
func messageBody(nid uint32, props []*Property) string {
	body := propertyString(props, TAG_BODY)
	if body != "" {
		return body
	}

	encoded := propertyString(props, TAG_HTML)
	if encoded != "" {
		data, err := utils.Base64Decode(encoded)
		if err != nil {
			return encoded
		}
		return utils.ExtractUTF8String(data)
	}

	encoded = propertyString(props, TAG_RTF_COMPRESSED)
	if encoded == "" {
		return ""
	}

	data, err := utils.Base64Decode(encoded)
	if err != nil {
		return encoded
	}

	rtf, err := compression.DecompressRTF(data)
	if err != nil {
		log.WithError(err).WithField("nid", nid).
			Warn("[outlook] Could not decompress RTF body")
		utils.STATS.Inc_DecompressionFailures()
		return encoded
	}
	return utils.ExtractUTF8String(rtf)
}
