package ese

import (
	"www.velocidex.com/golang/go-artifacts/utils"
)

// BranchPage is one edge of the tree: the key separating the child
// plus the child page number.
type BranchPage struct {
	CommonKeySize uint16
	LocalKey      []byte
	ChildPage     uint32
}

func ParseBranch(data []byte, flags TagFlags) (*BranchPage, error) {
	cursor := utils.NewCursor(data)
	result := &BranchPage{}

	var err error
	if flags.Has(TAG_COMMON_KEY) {
		result.CommonKeySize, err = cursor.U16LE()
		if err != nil {
			return nil, err
		}
	}

	local_size, err := cursor.U16LE()
	if err != nil {
		return nil, err
	}

	result.LocalKey, err = cursor.Take(int(local_size))
	if err != nil {
		return nil, err
	}

	result.ChildPage, err = cursor.U32LE()
	if err != nil {
		return nil, err
	}

	return result, nil
}
