// Shared types for the repository wire protocol: object types, name
// validation and the protocol error taxonomy.
package holvitypes

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

type ObjectType string

const (
	ObjectTypeConfig    ObjectType = "config"
	ObjectTypeData      ObjectType = "data"
	ObjectTypeIndex     ObjectType = "index"
	ObjectTypeKeys      ObjectType = "keys"
	ObjectTypeLocks     ObjectType = "locks"
	ObjectTypeSnapshots ObjectType = "snapshots"
)

// object types whose directory lives under the repository root. config is
// deliberately absent: it is a single file at the repo root, not a directory.
var DirectoryObjectTypes = []ObjectType{
	ObjectTypeData,
	ObjectTypeIndex,
	ObjectTypeKeys,
	ObjectTypeLocks,
	ObjectTypeSnapshots,
}

func ParseObjectType(serialized string) (ObjectType, error) {
	switch ObjectType(strings.ToLower(serialized)) {
	case ObjectTypeConfig:
		return ObjectTypeConfig, nil
	case ObjectTypeData:
		return ObjectTypeData, nil
	case ObjectTypeIndex:
		return ObjectTypeIndex, nil
	case ObjectTypeKeys:
		return ObjectTypeKeys, nil
	case ObjectTypeLocks:
		return ObjectTypeLocks, nil
	case ObjectTypeSnapshots:
		return ObjectTypeSnapshots, nil
	default:
		return "", NewError(ErrPathNotAllowed, nil)
	}
}

// these types name their objects by the lowercase hex SHA-256 of the content
func (o ObjectType) HexNamed() bool {
	switch o {
	case ObjectTypeData, ObjectTypeIndex, ObjectTypeKeys, ObjectTypeSnapshots:
		return true
	default:
		return false
	}
}

var hexNameRe = regexp.MustCompile("^[0-9a-f]{64}$")

// ValidateObjectName validates a name for use under the given object type.
// Hex-named types require a 64-char lowercase hex digest; locks accept any
// single path segment; config carries no name at all.
func ValidateObjectName(typ ObjectType, name string) error {
	if typ == ObjectTypeConfig {
		if name != "" {
			return NewError(ErrPathNotAllowed, nil)
		}
		return nil
	}

	if err := validatePathSegment(name); err != nil {
		return err
	}

	if typ.HexNamed() && !hexNameRe.MatchString(name) {
		return NewError(ErrPathNotAllowed, nil)
	}

	return nil
}

// ValidateRepoName rejects anything that is not a plain single path segment,
// and additionally any name equal to a reserved object type (so that e.g.
// /data/data/<name> can never be read as two different shapes).
func ValidateRepoName(repo string) error {
	return validatePathSegment(repo)
}

func validatePathSegment(segment string) error {
	if !utf8.ValidString(segment) {
		return NewError(ErrNonUnicodePath, nil)
	}

	switch segment {
	case "", ".", "..":
		return NewError(ErrPathNotAllowed, nil)
	}

	if strings.ContainsAny(segment, "/\\\x00") {
		return NewError(ErrPathNotAllowed, nil)
	}

	// reserved segments would make URL shapes ambiguous
	if _, err := ParseObjectType(segment); err == nil {
		return NewError(ErrPathNotAllowed, nil)
	}

	return nil
}
